package reminder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/turnforge/agentcore/internal/protocol"
)

// mentionPattern matches @path, @"quoted path", and @path#Lstart-end.
var mentionPattern = regexp.MustCompile(`@(?:"([^"]+)"|([^\s"#]+))(#L(\d+)(?:-(\d+))?)?`)

// mention is one parsed @-reference from a user prompt.
type mention struct {
	Path      string
	LineStart int
	LineEnd   int
	HasRange  bool
}

// parseMentions extracts every @path / @"quoted" / @path#Lstart-end
// reference from prompt, in first-seen order, de-duplicated by path+range.
func parseMentions(prompt string) []mention {
	var out []mention
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(prompt, -1) {
		path := m[1]
		if path == "" {
			path = m[2]
		}
		if path == "" {
			continue
		}
		var start, end int
		hasRange := m[3] != ""
		if hasRange {
			fmt.Sscanf(m[4], "%d", &start)
			if m[5] != "" {
				fmt.Sscanf(m[5], "%d", &end)
			} else {
				end = start
			}
		}
		key := fmt.Sprintf("%s#%d-%d", path, start, end)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, mention{Path: path, LineStart: start, LineEnd: end, HasRange: hasRange})
	}
	return out
}

// AtMentionedFiles implements spec §4.9's at_mentioned_files generator:
// every @path reference in the user prompt is read (up to 2000 lines or
// 100KB) and formatted as if a read tool had already run, so the model
// sees the file's contents without having to call the tool itself.
type AtMentionedFiles struct{}

func (AtMentionedFiles) Name() string           { return "at_mentioned_files" }
func (AtMentionedFiles) AttachmentType() string { return "simulated_tool_result" }
func (AtMentionedFiles) Tier() Tier             { return Core }
func (AtMentionedFiles) Throttle() Throttle     { return Throttle{} }
func (AtMentionedFiles) IsEnabled(cfg Config) bool {
	return !cfg.DisableAtMentionedFiles
}

const (
	maxMentionLines = 2000
	maxMentionBytes = 100 * 1024
)

func (AtMentionedFiles) Generate(rc Context) (protocol.Message, bool) {
	mentions := parseMentions(rc.UserPrompt)
	if len(mentions) == 0 || rc.ReadFile == nil {
		return protocol.Message{}, false
	}

	var sb strings.Builder
	any := false
	for _, m := range mentions {
		content, truncated, err := rc.ReadFile(m.Path, maxMentionLines, maxMentionBytes)
		if err != nil {
			fmt.Fprintf(&sb, "@%s: could not be read (%v)\n\n", m.Path, err)
			any = true
			continue
		}
		any = true
		label := m.Path
		if m.HasRange {
			label = fmt.Sprintf("%s#L%d-%d", m.Path, m.LineStart, m.LineEnd)
		}
		fmt.Fprintf(&sb, "Simulated read(%q) result:\n%s", label, content)
		if truncated {
			sb.WriteString("\n[truncated]")
		}
		sb.WriteString("\n\n")
	}
	if !any {
		return protocol.Message{}, false
	}
	return protocol.UserText(wrap(strings.TrimSpace(sb.String()))), true
}

// PlanApproved implements spec §4.9's plan_approved generator: once per
// approval, the full plan file contents are embedded so the model's next
// turn sees exactly what the user signed off on.
type PlanApproved struct{}

func (PlanApproved) Name() string           { return "plan_approved" }
func (PlanApproved) AttachmentType() string { return "plan_contents" }
func (PlanApproved) Tier() Tier             { return Core }
func (PlanApproved) Throttle() Throttle     { return Throttle{Once: true} }
func (PlanApproved) IsEnabled(cfg Config) bool {
	return !cfg.DisablePlanApproved
}

func (PlanApproved) Generate(rc Context) (protocol.Message, bool) {
	if !rc.PlanJustApproved || rc.PlanFileContents == "" {
		return protocol.Message{}, false
	}
	body := fmt.Sprintf("The user approved the following plan. Execute it.\n\n%s", rc.PlanFileContents)
	return protocol.UserText(wrap(body)), true
}

// BudgetUSD implements spec §4.9's budget_usd generator: fires only when
// remaining spend is at or below 10% of the session's total budget.
type BudgetUSD struct{}

func (BudgetUSD) Name() string           { return "budget_usd" }
func (BudgetUSD) AttachmentType() string { return "budget_warning" }
func (BudgetUSD) Tier() Tier             { return Core }
func (BudgetUSD) Throttle() Throttle     { return Throttle{MinInterval: 0} }
func (BudgetUSD) IsEnabled(cfg Config) bool {
	return !cfg.DisableBudgetUSD
}

func (BudgetUSD) Generate(rc Context) (protocol.Message, bool) {
	if rc.BudgetTotalUSD <= 0 {
		return protocol.Message{}, false
	}
	if rc.BudgetRemainingFraction > 0.10 {
		return protocol.Message{}, false
	}
	body := fmt.Sprintf(
		"Session budget is running low: $%.2f of $%.2f remaining (%.0f%%). Wrap up or ask the user before continuing expensive work.",
		rc.BudgetRemainingUSD, rc.BudgetTotalUSD, rc.BudgetRemainingFraction*100)
	return protocol.UserText(wrap(body)), true
}

// CompactFileReference implements spec §4.9's compact_file_reference
// generator: after a compaction, lists the large files that were elided
// rather than re-included verbatim, so the model knows they still exist on
// disk and can re-read them if needed.
type CompactFileReference struct{}

func (CompactFileReference) Name() string           { return "compact_file_reference" }
func (CompactFileReference) AttachmentType() string { return "compacted_file_list" }
func (CompactFileReference) Tier() Tier             { return Core }
func (CompactFileReference) Throttle() Throttle     { return Throttle{} }
func (CompactFileReference) IsEnabled(cfg Config) bool {
	return !cfg.DisableCompactFileRef
}

func (CompactFileReference) Generate(rc Context) (protocol.Message, bool) {
	if len(rc.CompactedFiles) == 0 {
		return protocol.Message{}, false
	}
	var sb strings.Builder
	sb.WriteString("The following large files were read earlier and removed from history during compaction. Re-read them if you need their contents again:\n")
	for _, f := range rc.CompactedFiles {
		fmt.Fprintf(&sb, "- %s (%d lines, %d bytes)\n", f.Path, f.LineCount, f.ByteSize)
	}
	return protocol.UserText(wrap(strings.TrimSpace(sb.String()))), true
}

// invokedSkillPattern matches a leading "/skill-name" token in the prompt.
var invokedSkillPattern = regexp.MustCompile(`(?m)^/([a-z0-9][a-z0-9-]*)\b`)

// InvokedSkills implements spec §4.9's invoked_skills generator: a
// user-typed "/skill" invocation injects that skill's prompt body as a
// UserPrompt-tier attachment (appended to the user's own message rather
// than a separate one, since it's effectively an expansion of what the
// user typed).
type InvokedSkills struct{}

func (InvokedSkills) Name() string           { return "invoked_skills" }
func (InvokedSkills) AttachmentType() string { return "skill_prompt" }
func (InvokedSkills) Tier() Tier             { return UserPrompt }
func (InvokedSkills) Throttle() Throttle     { return Throttle{} }
func (InvokedSkills) IsEnabled(cfg Config) bool {
	return !cfg.DisableInvokedSkills
}

func (InvokedSkills) Generate(rc Context) (protocol.Message, bool) {
	if rc.ResolveSkill == nil {
		return protocol.Message{}, false
	}
	m := invokedSkillPattern.FindStringSubmatch(rc.UserPrompt)
	if m == nil {
		return protocol.Message{}, false
	}
	body, ok := rc.ResolveSkill(m[1])
	if !ok {
		return protocol.Message{}, false
	}
	return protocol.UserText(wrap(body)), true
}
