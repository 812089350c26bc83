package approval

import (
	"encoding/json"

	"github.com/gobwas/glob"
)

// RuleAction is a permission rule's verdict when it matches a call.
type RuleAction int

const (
	RuleAllow RuleAction = iota
	RuleDeny
	RuleAsk
)

func (a RuleAction) String() string {
	switch a {
	case RuleAllow:
		return "allow"
	case RuleDeny:
		return "deny"
	case RuleAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// Rule matches a tool call by tool name glob and, optionally, a glob over
// one string-valued argument field (e.g. "path" or "command"). Rules are
// evaluated in order; the first match wins, per spec §4.4 step 2.
type Rule struct {
	ToolName  string // glob, e.g. "bash", "mcp__*", "*"
	ArgField  string // optional: name of a top-level string argument field to match
	ArgGlob   string // optional: glob applied to that field's value
	Action    RuleAction
	Reason    string
	toolGlob  glob.Glob
	argGlob   glob.Glob
	compiled  bool
}

// compile lazily builds the glob matchers for a rule; invalid patterns are
// treated as never-matching rather than erroring the whole rule set, since
// a single malformed config rule shouldn't take down every tool call.
func (r *Rule) compile() {
	if r.compiled {
		return
	}
	r.compiled = true
	if r.ToolName != "" {
		if g, err := glob.Compile(r.ToolName); err == nil {
			r.toolGlob = g
		}
	}
	if r.ArgGlob != "" {
		if g, err := glob.Compile(r.ArgGlob); err == nil {
			r.argGlob = g
		}
	}
}

func (r *Rule) matches(toolName string, args json.RawMessage) bool {
	r.compile()
	if r.toolGlob == nil || !r.toolGlob.Match(toolName) {
		return false
	}
	if r.ArgField == "" {
		return true
	}
	if r.argGlob == nil {
		return false
	}
	value, ok := extractStringField(args, r.ArgField)
	if !ok {
		return false
	}
	return r.argGlob.Match(value)
}

// RuleSet is an ordered list of Rules evaluated first-match-wins.
type RuleSet []Rule

// Evaluate returns the first matching rule's action, or (RuleAsk, false)
// if nothing matched — callers fall back to the policy-level decision in
// that case (spec §4.4 step 3/4).
func (rs RuleSet) Evaluate(toolName string, args json.RawMessage) (RuleAction, string, bool) {
	for i := range rs {
		if rs[i].matches(toolName, args) {
			return rs[i].Action, rs[i].Reason, true
		}
	}
	return RuleAsk, "", false
}

func extractStringField(args json.RawMessage, field string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		return "", false
	}
	raw, ok := m[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
