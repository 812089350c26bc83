// Package reminder implements the System-Reminder Generators of spec §4.9
// (C9): small, independently-enabled producers that each contribute at most
// one attachment to a turn's request, wrapped in <system-reminder>...</system-reminder>
// and injected as an extra user-role message (or appended to the user
// prompt itself, for the UserPrompt tier). Grounded on the teacher's
// internal/agents registered-capability pattern (name + predicate +
// produce), generalized here to the five generators spec §4.9 names.
package reminder

import (
	"fmt"
	"time"

	"github.com/turnforge/agentcore/internal/protocol"
)

// Tier controls how a generated reminder is attached to the outgoing
// request.
type Tier int

const (
	// Core reminders are injected as their own user-role message ahead of
	// the model call, regardless of what prompted the turn.
	Core Tier = iota
	// UserPrompt reminders are appended directly onto the user's own
	// message instead of becoming a separate message.
	UserPrompt
	// MainAgentOnly reminders never fire inside a sub-agent turn (spec
	// §4.6: sub-agents get a forced read-only instruction instead).
	MainAgentOnly
)

// Throttle bounds how often a generator is allowed to fire.
type Throttle struct {
	// Once, when true, means the generator fires at most one time per
	// session regardless of how many turns run (e.g. plan_approved).
	Once bool
	// MinInterval, when non-zero, is the minimum time between two firings
	// of this generator within one session.
	MinInterval time.Duration
}

// Context is everything a generator's Generate may need. Not every field
// applies to every generator; a generator ignores what it doesn't use.
type Context struct {
	Cwd        string
	UserPrompt string

	// PlanJustApproved and PlanFileContents feed plan_approved.
	PlanJustApproved bool
	PlanFileContents string

	// BudgetRemainingFraction is remaining/total, in [0,1]; feeds budget_usd.
	BudgetRemainingFraction float64
	BudgetTotalUSD          float64
	BudgetRemainingUSD      float64

	// CompactedFiles feeds compact_file_reference: files the most recent
	// compaction elided rather than re-included verbatim.
	CompactedFiles []CompactedFile

	// ResolveSkill looks up an invoked "/name" skill's prompt body; feeds
	// invoked_skills. Nil if no skill source is wired (e.g. tests).
	ResolveSkill func(name string) (promptBody string, ok bool)

	// ReadFile reads up to maxLines lines (or maxBytes bytes) of path for
	// at_mentioned_files. Returns the (possibly truncated) content and
	// whether it was truncated.
	ReadFile func(path string, maxLines int, maxBytes int) (content string, truncated bool, err error)
}

// CompactedFile is one file elided by the most recent compaction.
type CompactedFile struct {
	Path      string
	LineCount int
	ByteSize  int
}

// Generator is one system-reminder producer, per spec §4.9's
// { name, attachment_type, tier, is_enabled(config), throttle_config,
// generate(ctx) -> Option<Reminder> } tuple.
type Generator interface {
	Name() string
	AttachmentType() string
	Tier() Tier
	IsEnabled(cfg Config) bool
	Throttle() Throttle
	Generate(rc Context) (protocol.Message, bool)
}

// Config gates which generators run; the turn engine builds this from the
// session's loaded internal/config.Config plus per-session state.
type Config struct {
	DisableAtMentionedFiles bool
	DisablePlanApproved     bool
	DisableBudgetUSD        bool
	DisableCompactFileRef   bool
	DisableInvokedSkills    bool
	BudgetWarnFraction      float64 // not read by any generator; budget_usd always warns at 10% remaining
	IsMainAgent             bool
}

func wrap(body string) string {
	return fmt.Sprintf("<system-reminder>\n%s\n</system-reminder>", body)
}

// state tracks per-session throttle bookkeeping (last-fired time, whether
// a Once generator has already fired).
type state struct {
	fired     bool
	lastFired time.Time
}

// Engine runs the full set of registered generators at turn start and
// returns the reminder messages (Core tier) plus the text to append to the
// user prompt (UserPrompt tier), per spec §4.9.
type Engine struct {
	generators []Generator
	state      map[string]*state
}

// NewEngine builds an Engine with the five required generators.
func NewEngine() *Engine {
	return &Engine{
		generators: []Generator{
			AtMentionedFiles{},
			PlanApproved{},
			BudgetUSD{},
			CompactFileReference{},
			InvokedSkills{},
		},
		state: make(map[string]*state),
	}
}

// Run executes every enabled, unthrottled generator against rc, returning
// the Core-tier reminder messages to inject and any UserPrompt-tier text to
// append to the user's own message.
func (e *Engine) Run(cfg Config, rc Context, now time.Time) (coreMessages []protocol.Message, userPromptSuffix string) {
	for _, g := range e.generators {
		if g.Tier() == MainAgentOnly && !cfg.IsMainAgent {
			continue
		}
		if !g.IsEnabled(cfg) {
			continue
		}
		st := e.state[g.Name()]
		if st == nil {
			st = &state{}
			e.state[g.Name()] = st
		}
		th := g.Throttle()
		if th.Once && st.fired {
			continue
		}
		if th.MinInterval > 0 && !st.lastFired.IsZero() && now.Sub(st.lastFired) < th.MinInterval {
			continue
		}

		msg, ok := g.Generate(rc)
		if !ok {
			continue
		}
		st.fired = true
		st.lastFired = now

		switch g.Tier() {
		case UserPrompt:
			if len(msg.Parts) > 0 {
				userPromptSuffix += "\n\n" + msg.Parts[0].Text
			}
		default:
			coreMessages = append(coreMessages, msg)
		}
	}
	return coreMessages, userPromptSuffix
}
