package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is one model-requested tool call awaiting dispatch.
type Request struct {
	Tool   string
	CallID string
	// Arguments is the raw JSON object; Keys are its top-level keys, sorted.
	Arguments string
	Keys      []string
	TaskID    string
}

// Result is the decision for one call. Rule names which rule denied it.
type Result struct {
	Effect Effect
	Reason string
	Rule   string
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies listed tools and argument patterns. It is
// configured at startup and only read afterwards.
type DefaultPolicyEngine struct {
	DeniedTools map[string]bool
	DeniedKeys  map[string]bool
	DeniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools: make(map[string]bool),
		DeniedKeys:  make(map[string]bool),
	}
}

// FromRules builds an engine from config lists.
func FromRules(deniedTools, deniedKeys, deniedArguments []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, name := range deniedTools {
		e.DenyTool(name)
	}
	for _, key := range deniedKeys {
		e.DenyArgumentKey(key)
	}
	for _, pattern := range deniedArguments {
		if err := e.DenyArguments(pattern); err != nil {
			return nil, fmt.Errorf("denied argument pattern %q: %w", pattern, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.DeniedTools[name] = true
}

// DenyArgumentKey rejects any call that passes key, whatever the tool.
func (e *DefaultPolicyEngine) DenyArgumentKey(key string) {
	e.DeniedKeys[key] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("call %s: tool '%s' is restricted by system policy", req.CallID, req.Tool),
			Rule:   "denied_tools",
		}, nil
	}

	for _, key := range req.Keys {
		if e.DeniedKeys[key] {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("call %s: argument '%s' is restricted by system policy", req.CallID, key),
				Rule:   "denied_argument_keys",
			}, nil
		}
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("call %s: arguments match restricted pattern: %s", req.CallID, re.String()),
				Rule:   "denied_arguments",
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}, nil
}
