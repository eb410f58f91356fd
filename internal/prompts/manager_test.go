package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_Defaults(t *testing.T) {
	pm, err := NewManager("")
	if err != nil {
		t.Fatal(err)
	}
	for kind := range defaults {
		if pm.Get(kind) == "" {
			t.Errorf("missing default prompt for %s", kind)
		}
	}
	if !strings.Contains(pm.Get(Planner), "define_two_step_plan") {
		t.Error("planner prompt should name the planning tool")
	}
}

func TestManager_Overrides(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"identity.md": "Identity Content",
		"planner.md":  "Planner Content",
		"extra.md":    "Ignored Content",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	pm, err := NewManager(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	planner := pm.Get(Planner)
	if !strings.Contains(planner, "Planner Content") {
		t.Errorf("planner override not applied: %s", planner)
	}
	if strings.Index(planner, "Identity Content") >= strings.Index(planner, "Planner Content") {
		t.Error("Identity should be before the planner prompt")
	}

	executor := pm.Get(Executor)
	if !strings.HasPrefix(executor, "Identity Content") || !strings.Contains(executor, defaults[Executor]) {
		t.Errorf("executor should be identity plus default, got: %s", executor)
	}

	for kind := range defaults {
		if strings.Contains(pm.Get(kind), "Ignored Content") {
			t.Errorf("unknown file leaked into %s", kind)
		}
	}
}
