// Package watch implements the File/MCP Watchers & Caches component of
// spec §4.10 (C10): a process-wide fsnotify watcher over
// "<home>/skills/**/SKILL.md" that emits SkillsChanged and invalidates the
// cwd-keyed skill LRU, plus an "<home>/plugins/mcp.json" watch that
// triggers an atomic internal/mcp.Manager reload. Grounded on the debounced
// fsnotify loop in haasonsaas-nexus's internal/skills Manager
// (StartWatching/watchLoop/refreshWatches), adapted to this module's
// narrower scope (no remote marketplace discovery) and to also cover the
// MCP config file the teacher's watcher doesn't.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turnforge/agentcore/internal/mcp"
	"github.com/turnforge/agentcore/internal/toolkit"
)

// DefaultDebounce coalesces a burst of filesystem events (e.g. an editor's
// save-via-rename) into a single refresh.
const DefaultDebounce = 250 * time.Millisecond

// SkillsChanged is emitted whenever one or more SKILL.md files under the
// watched skills root were created, written, removed, or renamed.
type SkillsChanged struct {
	Paths []string
}

// Watcher owns the process-wide fsnotify handle and both reload targets:
// the skill cache and the MCP manager's tool registry.
type Watcher struct {
	home       string
	skillsRoot string
	mcpPath    string
	debounce   time.Duration

	cache      *SkillCache
	mcpManager *mcp.Manager
	toolReg    *toolkit.Registry
	logger     *slog.Logger

	fsw    *fsnotify.Watcher
	events chan SkillsChanged

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Watcher rooted at home (spec §6's "~/.<app>/"). cache may
// be nil (no skill-cache invalidation, e.g. in tests); mcpManager/toolReg
// may both be nil (no MCP reload wiring).
func New(home string, cache *SkillCache, mcpManager *mcp.Manager, toolReg *toolkit.Registry, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		home:       home,
		skillsRoot: filepath.Join(home, "skills"),
		mcpPath:    filepath.Join(home, "plugins", "mcp.json"),
		debounce:   DefaultDebounce,
		cache:      cache,
		mcpManager: mcpManager,
		toolReg:    toolReg,
		logger:     logger,
		events:     make(chan SkillsChanged, 8),
	}
}

// Events returns the channel SkillsChanged notifications are posted to.
func (w *Watcher) Events() <-chan SkillsChanged { return w.events }

// Start begins watching. It is safe to call once; a second call is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.fsw != nil {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.addWatchRecursive(w.skillsRoot)
	if err := os.MkdirAll(filepath.Dir(w.mcpPath), 0o755); err == nil {
		_ = fsw.Add(filepath.Dir(w.mcpPath))
	}

	w.wg.Add(1)
	go w.loop(watchCtx)
	return nil
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()

	var err error
	if fsw != nil {
		err = fsw.Close()
	}
	w.wg.Wait()
	close(w.events)
	return err
}

// addWatchRecursive adds root and every existing subdirectory (fsnotify
// does not watch recursively on its own); missing directories are skipped
// rather than erroring, since skills/ may not exist until the user creates
// their first skill.
func (w *Watcher) addWatchRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d == nil || !d.IsDir() {
			return nil
		}
		_ = w.fsw.Add(path)
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	pending := make(map[string]bool)

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]bool)
		mu.Unlock()
		if len(paths) == 0 {
			return
		}
		w.handleChange(paths)
	}

	schedule := func(path string) {
		mu.Lock()
		pending[path] = true
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, flush)
		mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addWatchRecursive(ev.Name)
				}
			}
			schedule(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// handleChange dispatches a debounced batch of changed paths to whichever
// reload targets they apply to.
func (w *Watcher) handleChange(paths []string) {
	var skillPaths []string
	mcpChanged := false
	for _, p := range paths {
		if p == w.mcpPath {
			mcpChanged = true
			continue
		}
		if filepath.Base(p) == "SKILL.md" || isUnder(p, w.skillsRoot) {
			skillPaths = append(skillPaths, p)
		}
	}

	if len(skillPaths) > 0 {
		if w.cache != nil && Intersects(w.skillsRoot, skillPaths) {
			w.cache.InvalidateAll()
		}
		select {
		case w.events <- SkillsChanged{Paths: skillPaths}:
		default:
			w.logger.Warn("dropping SkillsChanged event, channel full")
		}
	}

	if mcpChanged && w.mcpManager != nil {
		cfg, err := mcp.LoadConfigFromPath(w.mcpPath)
		if err != nil {
			w.logger.Warn("reload mcp.json failed", "error", err)
			return
		}
		w.mcpManager.Reload(context.Background(), cfg)
		if w.toolReg != nil {
			mcp.RegisterAll(w.mcpManager, w.toolReg)
		}
	}
}

func isUnder(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && len(rel) > 0 && rel[0] != '.'
}
