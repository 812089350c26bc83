package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/turnforge/agentcore/internal/approval"
	"github.com/turnforge/agentcore/internal/budget"
	"github.com/turnforge/agentcore/internal/config"
	"github.com/turnforge/agentcore/internal/mcp"
	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/provider"
	"github.com/turnforge/agentcore/internal/reminder"
	"github.com/turnforge/agentcore/internal/rollout"
	"github.com/turnforge/agentcore/internal/subagent"
	"github.com/turnforge/agentcore/internal/toolkit"
	"github.com/turnforge/agentcore/internal/turn"
	"github.com/turnforge/agentcore/internal/watch"
)

// Session wires every component (C1-C10) into one runnable unit: a single
// turn.Engine with its toolkit registry/executor/scheduler, approval gate,
// MCP manager, reminder engine, and rollout persistence, all built from a
// loaded config.Config. This is the "host surface" every seam interface in
// the core packages (toolkit.PermissionChecker, turn.ApprovalWaiter,
// budget.Summarizer, subagent.TurnRunner) was written against.
type Session struct {
	id       string
	cwd      string
	home     string
	cfg      *config.Config
	prov     provider.Provider
	info     protocol.ModelInfo
	engine   *turn.Engine
	reminder *reminder.Engine
	gate     *approval.Gate
	mcpMgr   *mcp.Manager
	watcher  *watch.Watcher
	registry *toolkit.Registry
	planMode *toolkit.PlanModeState
	history  []protocol.Message
	logger   *slog.Logger

	totalBudgetUSD float64
	spentUSD       float64
}

// NewSession builds a Session for a fresh conversation rooted at cwd,
// using the named profile (empty string selects the default profile).
func NewSession(ctx context.Context, profile, cwd, modelOverride string, logger *slog.Logger) (*Session, error) {
	cfg, err := config.Load(profile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	home, err := config.HomeDir()
	if err != nil {
		return nil, err
	}

	providerName := cfg.DefaultProvider
	model := modelOverride
	if p, m, perr := provider.ParseProviderModel(modelOverride); perr == nil && p != "" {
		providerName, model = p, m
	}
	info := defaultModelInfo(providerName, model)
	prov, err := provider.New(ctx, cfg.ProviderConfigFor(providerName, model), info)
	if err != nil {
		return nil, fmt.Errorf("build provider %s: %w", providerName, err)
	}

	registry := toolkit.NewRegistry()
	planState := toolkit.NewPlanModeState()
	jobs := toolkit.NewShellJobs()
	limits := toolkit.DefaultOutputLimits()
	if cfg.Tools.MaxToolOutputChars > 0 {
		limits.MaxBytes = int64(cfg.Tools.MaxToolOutputChars)
	}
	todos := toolkit.NewTodoList()
	for _, t := range []toolkit.Tool{
		toolkit.NewReadTool(limits),
		toolkit.NewWriteTool(),
		toolkit.NewEditTool(),
		toolkit.NewGlobTool(),
		toolkit.NewGrepTool(limits),
		toolkit.NewBashTool(limits, jobs),
		toolkit.NewKillShellTool(jobs),
		toolkit.NewTaskOutputTool(jobs, limits),
		toolkit.NewApplyPatchTool(),
		toolkit.NewViewImageTool(),
		toolkit.NewWebFetchTool(10 << 20),
		toolkit.NewEnterPlanModeTool(planState),
		toolkit.NewTodoWriteTool(todos),
	} {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("register tool: %w", err)
		}
	}

	sandbox := cfg.SandboxPolicy()
	gate := approval.NewGate(cfg.ApprovalPolicy(), sandbox, nil, approval.NoopEstablisher{})

	mcpMgr := mcp.NewManager()
	if mcpCfg, err := mcp.LoadConfig(); err == nil {
		mcpMgr.Reload(ctx, mcpCfg)
		mcp.RegisterAll(mcpMgr, registry)
	}

	skillCache := watch.NewSkillCache(32)
	watcher := watch.New(home, skillCache, mcpMgr, registry, logger)
	_ = watcher.Start(ctx)

	s := &Session{
		id:       uuid.NewString(),
		cwd:      cwd,
		home:     home,
		cfg:      cfg,
		prov:     prov,
		info:     info,
		reminder: reminder.NewEngine(),
		gate:     gate,
		mcpMgr:   mcpMgr,
		watcher:  watcher,
		registry: registry,
		planMode: planState,
		logger:   logger,
	}

	if err := registry.Register(toolkit.NewExitPlanModeTool(planState, s.approvePlan)); err != nil {
		return nil, err
	}
	if err := registry.Register(toolkit.NewAskUserTool(s.askUser)); err != nil {
		return nil, err
	}

	executor := toolkit.NewExecutor(registry, gate, toolkit.Hooks{})
	scheduler := toolkit.NewScheduler(executor, cfg.Tools.ParallelToolCalls && info.SupportsParallelToolCalls)

	engineCfg := turn.Config{
		Registry:     registry,
		Executor:     executor,
		Scheduler:    scheduler,
		Gate:         gate,
		Approve:      s.resolveApproval,
		Compaction:   budget.Config{KeepRecent: 10, LargeFileThresholdBytes: 4096},
		TotalBudget:  info.ContextWindow,
		OutputTokens: cfg.Budget.OutputReserved,
	}
	engineCfg.Summarizer = &turn.ProviderSummarizer{Provider: prov, Model: model}
	if cfg.Fallback.Enabled && len(cfg.Fallback.FallbackModels) > 0 {
		chain := []provider.Provider{prov}
		for _, spec := range cfg.Fallback.FallbackModels {
			fbName, fbModel, perr := provider.ParseProviderModel(spec)
			if perr != nil {
				logger.Warn("skipping invalid fallback model spec", "spec", spec, "error", perr)
				continue
			}
			fbInfo := defaultModelInfo(fbName, fbModel)
			fbProv, perr := provider.New(ctx, cfg.ProviderConfigFor(fbName, fbModel), fbInfo)
			if perr != nil {
				logger.Warn("skipping unconfigured fallback provider", "provider", fbName, "error", perr)
				continue
			}
			chain = append(chain, fbProv)
		}
		engineCfg.Fallback = turn.NewFallbackChain(chain...)
	}
	s.engine = turn.NewEngine(engineCfg)

	childRunner := &turn.ChildRunner{Provider: prov, NewEngine: func() *turn.Engine { return turn.NewEngine(engineCfg) }}
	coordinator := subagent.NewCoordinator(childRunner, s.id)
	if err := registry.Register(toolkit.NewSpawnSubAgentTool(coordinator, toolkit.DefaultSpawnSubAgentConfig(), 0)); err != nil {
		return nil, err
	}

	return s, nil
}

func defaultModelInfo(providerName, model string) protocol.ModelInfo {
	return protocol.ModelInfo{
		Provider:                  providerName,
		ID:                        model,
		ContextWindow:             200_000,
		MaxOutputTokens:           8192,
		SupportsParallelToolCalls: true,
		DefaultReasoningEffort:    protocol.ThinkingOff,
	}
}

// RunOneShot drives a single turn from prompt and returns the assistant's
// final text.
func (s *Session) RunOneShot(ctx context.Context, prompt string) (string, error) {
	req := s.buildRequest(prompt)
	result, err := s.engine.RunTurn(ctx, s.prov, req, s.printEvent, nil)
	if err != nil {
		return "", err
	}
	s.history = result.History
	s.persist(result)
	return result.FinalText, nil
}

// RunChat drives an interactive loop reading prompts from stdin until EOF
// or "/exit".
func (s *Session) RunChat(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println("agentcore chat - type /exit to quit")
	}
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" {
			return nil
		}
		text, err := s.RunOneShot(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(text)
	}
}

func (s *Session) buildRequest(prompt string) turn.Request {
	rc := reminder.Context{
		Cwd:        s.cwd,
		UserPrompt: prompt,
		ReadFile: func(path string, maxLines, maxBytes int) (string, bool, error) {
			return readMentionedFile(path, maxLines, maxBytes)
		},
	}
	if s.totalBudgetUSD > 0 {
		rc.BudgetTotalUSD = s.totalBudgetUSD
		rc.BudgetRemainingUSD = s.totalBudgetUSD - s.spentUSD
		rc.BudgetRemainingFraction = rc.BudgetRemainingUSD / s.totalBudgetUSD
	}

	reminders, suffix := s.reminder.Run(reminder.Config{IsMainAgent: true}, rc, time.Now())
	userText := prompt
	if suffix != "" {
		userText += suffix
	}

	return turn.Request{
		SessionID:         s.id,
		Cwd:               s.cwd,
		Model:             s.info.ID,
		SystemPrompt:      s.info.BaseInstructions,
		History:           s.history,
		UserMessage:       protocol.UserText(userText),
		Tools:             s.registry.Specs(),
		ParallelToolCalls: s.info.SupportsParallelToolCalls,
		ReminderMessages:  reminders,
	}
}

func readMentionedFile(path string, maxLines, maxBytes int) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	truncated := false
	if len(data) > maxBytes {
		data = data[:maxBytes]
		truncated = true
	}
	lines := strings.SplitN(string(data), "\n", maxLines+1)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	return strings.Join(lines, "\n"), truncated, nil
}

func (s *Session) printEvent(ev protocol.Event) {
	switch ev.Type {
	case protocol.EventTextDelta:
		fmt.Print(ev.Text)
	case protocol.EventToolExecStart:
		fmt.Fprintf(os.Stderr, "\n[tool] %s\n", ev.ToolName)
	}
}

func (s *Session) askUser(ctx context.Context, questions []toolkit.AskUserQuestion) ([]toolkit.AskUserAnswer, error) {
	answers := make([]toolkit.AskUserAnswer, 0, len(questions))
	reader := bufio.NewReader(os.Stdin)
	for _, q := range questions {
		fmt.Printf("%s: ", q.Question)
		line, _ := reader.ReadString('\n')
		answers = append(answers, toolkit.AskUserAnswer{QuestionID: q.ID, Answer: strings.TrimSpace(line)})
	}
	return answers, nil
}

func (s *Session) approvePlan(ctx context.Context, plan string) (bool, error) {
	fmt.Printf("\n--- proposed plan ---\n%s\n---------------------\nApprove? [y/N] ", plan)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y"), nil
}

func (s *Session) resolveApproval(ctx context.Context, call protocol.ToolCall, requestID string) (turn.ApprovalDecision, error) {
	fmt.Printf("\nApprove %s(%s)? [y/N] ", call.Name, string(call.Arguments))
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	allow := strings.EqualFold(strings.TrimSpace(line), "y")
	return turn.ApprovalDecision{Allow: allow}, nil
}

func (s *Session) persist(result turn.Result) {
	dir := rollout.DayDir(s.home, time.Now())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Warn("persist: mkdir failed", "error", err)
		return
	}
	path := rollout.Path(s.home, time.Now(), s.id, false)
	meta, err := rollout.NewMetaRecord(time.Now(), rollout.SessionMeta{
		ID:            s.id,
		Cwd:           s.cwd,
		Originator:    "agentcore",
		ModelProvider: s.info.Provider,
	})
	if err != nil {
		s.logger.Warn("persist: build meta record failed", "error", err)
		return
	}

	var history []rollout.Record
	for _, msg := range result.History {
		typ := rollout.RecordUserMessage
		if msg.Role == protocol.RoleAssistant {
			typ = rollout.RecordAssistantMessage
		}
		rec, err := rollout.NewRecord(time.Now(), typ, msg)
		if err != nil {
			continue
		}
		history = append(history, rec)
	}

	if err := rollout.Save(path, meta, history); err != nil {
		s.logger.Warn("persist: save failed", "error", err)
	}
}

// Close releases the session's background resources (watcher, MCP
// servers).
func (s *Session) Close() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.mcpMgr != nil {
		s.mcpMgr.StopAll()
	}
}
