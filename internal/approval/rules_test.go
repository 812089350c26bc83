package approval

import (
	"encoding/json"
	"testing"
)

func TestRuleSet_FirstMatchWins(t *testing.T) {
	rs := RuleSet{
		{ToolName: "bash", ArgField: "command", ArgGlob: "rm *", Action: RuleDeny, Reason: "destructive"},
		{ToolName: "bash", Action: RuleAllow},
	}
	args, _ := json.Marshal(map[string]string{"command": "rm -rf /tmp/x"})
	action, reason, matched := rs.Evaluate("bash", args)
	if !matched {
		t.Fatal("expected a match")
	}
	if action != RuleDeny || reason != "destructive" {
		t.Fatalf("got action=%v reason=%q", action, reason)
	}
}

func TestRuleSet_FallsThroughToLaterRule(t *testing.T) {
	rs := RuleSet{
		{ToolName: "bash", ArgField: "command", ArgGlob: "rm *", Action: RuleDeny},
		{ToolName: "bash", Action: RuleAllow},
	}
	args, _ := json.Marshal(map[string]string{"command": "ls -la"})
	action, _, matched := rs.Evaluate("bash", args)
	if !matched || action != RuleAllow {
		t.Fatalf("expected fallthrough rule to allow, got action=%v matched=%v", action, matched)
	}
}

func TestRuleSet_NoMatchReturnsFalse(t *testing.T) {
	rs := RuleSet{{ToolName: "write", Action: RuleDeny}}
	args, _ := json.Marshal(map[string]string{"command": "ls"})
	_, _, matched := rs.Evaluate("bash", args)
	if matched {
		t.Fatal("expected no match for an unrelated tool name")
	}
}

func TestRuleSet_WildcardToolName(t *testing.T) {
	rs := RuleSet{{ToolName: "mcp__*", Action: RuleAsk}}
	action, _, matched := rs.Evaluate("mcp__github", json.RawMessage(`{}`))
	if !matched || action != RuleAsk {
		t.Fatalf("expected wildcard tool-name rule to match, got matched=%v action=%v", matched, action)
	}
}

func TestRuleSet_ArgFieldMissingDoesNotMatch(t *testing.T) {
	rs := RuleSet{{ToolName: "bash", ArgField: "command", ArgGlob: "rm *", Action: RuleDeny}}
	action, _, matched := rs.Evaluate("bash", json.RawMessage(`{}`))
	if matched {
		t.Fatalf("expected no match when the arg field is absent, got action=%v", action)
	}
}
