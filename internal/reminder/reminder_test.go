package reminder

import (
	"strings"
	"testing"
	"time"
)

func TestParseMentions_PlainQuotedAndRange(t *testing.T) {
	mentions := parseMentions(`Look at @a.txt and @"b with space.txt" and @c.go#L10-20`)
	if len(mentions) != 3 {
		t.Fatalf("expected 3 mentions, got %d: %+v", len(mentions), mentions)
	}
	if mentions[0].Path != "a.txt" {
		t.Errorf("mention 0 = %+v", mentions[0])
	}
	if mentions[1].Path != "b with space.txt" {
		t.Errorf("mention 1 = %+v", mentions[1])
	}
	if mentions[2].Path != "c.go" || mentions[2].LineStart != 10 || mentions[2].LineEnd != 20 {
		t.Errorf("mention 2 = %+v", mentions[2])
	}
}

func TestAtMentionedFiles_NoMentionsSkipped(t *testing.T) {
	g := AtMentionedFiles{}
	rc := Context{UserPrompt: "no references here", ReadFile: func(string, int, int) (string, bool, error) {
		t.Fatal("ReadFile should not be called")
		return "", false, nil
	}}
	if _, ok := g.Generate(rc); ok {
		t.Fatal("expected no reminder when prompt has no @mentions")
	}
}

func TestAtMentionedFiles_EmbedsFileContent(t *testing.T) {
	g := AtMentionedFiles{}
	rc := Context{
		UserPrompt: "check @main.go please",
		ReadFile: func(path string, maxLines, maxBytes int) (string, bool, error) {
			if path != "main.go" {
				t.Fatalf("unexpected path %q", path)
			}
			return "package main\n", false, nil
		},
	}
	msg, ok := g.Generate(rc)
	if !ok {
		t.Fatal("expected a reminder")
	}
	if !strings.Contains(msg.Parts[0].Text, "package main") {
		t.Fatalf("reminder missing file content: %q", msg.Parts[0].Text)
	}
	if !strings.HasPrefix(msg.Parts[0].Text, "<system-reminder>") {
		t.Fatalf("reminder not wrapped: %q", msg.Parts[0].Text)
	}
}

func TestBudgetUSD_OnlyFiresUnderTenPercent(t *testing.T) {
	g := BudgetUSD{}
	if _, ok := g.Generate(Context{BudgetTotalUSD: 10, BudgetRemainingFraction: 0.5}); ok {
		t.Fatal("should not fire at 50% remaining")
	}
	msg, ok := g.Generate(Context{BudgetTotalUSD: 10, BudgetRemainingFraction: 0.05, BudgetRemainingUSD: 0.5})
	if !ok {
		t.Fatal("should fire at 5% remaining")
	}
	if !strings.Contains(msg.Parts[0].Text, "$0.50") {
		t.Fatalf("expected remaining dollar amount in body: %q", msg.Parts[0].Text)
	}
}

func TestPlanApproved_OnlyFiresOncePerSession(t *testing.T) {
	e := NewEngine()
	cfg := Config{IsMainAgent: true}
	rc := Context{PlanJustApproved: true, PlanFileContents: "1. do the thing"}
	now := time.Unix(0, 0)

	msgs, _ := e.Run(cfg, rc, now)
	found := false
	for _, m := range msgs {
		if strings.Contains(m.Parts[0].Text, "do the thing") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected plan_approved to fire on first run")
	}

	msgs, _ = e.Run(cfg, rc, now.Add(time.Second))
	for _, m := range msgs {
		if strings.Contains(m.Parts[0].Text, "do the thing") {
			t.Fatal("plan_approved should not fire twice in one session")
		}
	}
}

func TestInvokedSkills_AppendsToUserPromptNotAsSeparateMessage(t *testing.T) {
	e := NewEngine()
	cfg := Config{IsMainAgent: true}
	rc := Context{
		UserPrompt: "/deploy staging now",
		ResolveSkill: func(name string) (string, bool) {
			if name != "deploy" {
				return "", false
			}
			return "Deploy instructions here.", true
		},
	}
	coreMessages, suffix := e.Run(cfg, rc, time.Unix(0, 0))
	if !strings.Contains(suffix, "Deploy instructions here.") {
		t.Fatalf("expected skill prompt appended to user prompt suffix, got %q", suffix)
	}
	for _, m := range coreMessages {
		if strings.Contains(m.Parts[0].Text, "Deploy instructions") {
			t.Fatal("invoked_skills must not appear as a Core-tier message")
		}
	}
}

func TestCompactFileReference_ListsElidedFiles(t *testing.T) {
	g := CompactFileReference{}
	msg, ok := g.Generate(Context{CompactedFiles: []CompactedFile{{Path: "big.log", LineCount: 50000, ByteSize: 2_000_000}}})
	if !ok {
		t.Fatal("expected a reminder when files were compacted out")
	}
	if !strings.Contains(msg.Parts[0].Text, "big.log") {
		t.Fatalf("missing file path: %q", msg.Parts[0].Text)
	}
}

func TestCoreGeneratorStillFiresForSubAgents(t *testing.T) {
	// No shipped generator is MainAgentOnly, so this exercises the tier gate
	// in Engine.Run from the other side: with IsMainAgent disabled,
	// at_mentioned_files (a Core-tier, non-MainAgentOnly generator) still
	// fires — only generators explicitly tiered MainAgentOnly are skipped.
	e := NewEngine()
	cfg := Config{IsMainAgent: false}
	rc := Context{
		UserPrompt: "read @x.txt",
		ReadFile:   func(string, int, int) (string, bool, error) { return "data", false, nil },
	}
	msgs, _ := e.Run(cfg, rc, time.Unix(0, 0))
	if len(msgs) == 0 {
		t.Fatal("expected at_mentioned_files to still fire for a sub-agent turn")
	}
}
