package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Parse(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("app:\n  name: test\n"), 0o644))

	type testCase struct {
		name        string
		args        []string
		expectError string
		expectHelp  bool
	}

	cases := []testCase{
		{
			name:       "help",
			args:       []string{"--help"},
			expectHelp: true,
		},
		{
			name:        "no command",
			args:        []string{},
			expectError: "Please specify one command",
		},
		{
			name:        "unknown command",
			args:        []string{"deploy"},
			expectError: "Unknown command",
		},
		{
			name:        "agent without task",
			args:        []string{"agent"},
			expectError: "task is required",
		},
		{
			name:        "ingest without source",
			args:        []string{"ingest"},
			expectError: "file-or-url",
		},
		{
			name:        "no provider configured",
			args:        []string{"-f", cfgPath, "ask", "hello"},
			expectError: "no enabled provider",
		},
		{
			name:        "missing config file",
			args:        []string{"--config", filepath.Join(dir, "missing.yaml"), "tools", "What is 12 * 7?"},
			expectError: "failed to open config file",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			opts := &Options{}
			parser := newParser(opts, &out)
			_, err := parser.ParseArgs(tc.args)

			if tc.expectHelp {
				var flagsErr *flags.Error
				require.ErrorAs(t, err, &flagsErr)
				assert.Equal(t, flags.ErrHelp, flagsErr.Type)
				assert.Contains(t, err.Error(), "ingest")
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectError)
		})
	}
}

func TestOptions_ServeFlags(t *testing.T) {
	cmd := &ServeCmd{}
	parser := flags.NewParser(cmd, flags.HelpFlag|flags.PassDoubleDash)
	parser.CommandHandler = func(flags.Commander, []string) error { return nil }
	_, err := parser.ParseArgs([]string{"--addr", ":9090", "--no-telegram"})
	require.NoError(t, err)
	assert.Equal(t, ":9090", cmd.Addr)
	assert.True(t, cmd.NoTelegram)
}

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>hi</p>"), 0o644))

	doc, err := readDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "page.html", doc.Name)
	assert.Contains(t, doc.ContentType, "text/html")
	assert.Equal(t, []byte("<p>hi</p>"), doc.Body)

	_, err = readDocument(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestJoinArgs(t *testing.T) {
	got, err := joinArgs([]string{"What", "is", "12", "*", "7?"}, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "What is 12 * 7?", got)

	_, err = joinArgs([]string{" "}, "prompt")
	assert.EqualError(t, err, "prompt is required")
}
