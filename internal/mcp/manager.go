package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// ServerStatus represents the current state of an MCP server.
type ServerStatus string

const (
	StatusStopped  ServerStatus = "stopped"
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusFailed   ServerStatus = "failed"
)

// ServerState holds the state of a managed MCP server.
type ServerState struct {
	Name   string
	Status ServerStatus
	Error  error
	Client *Client
}

// StatusUpdate is sent when a server's status changes.
type StatusUpdate struct {
	Name   string
	Status ServerStatus
	Error  error
}

// snapshot is the atomically-swapped view of every ready server's tools,
// keyed by server name. Manager.Tools and Manager.CallTool only ever read
// the current snapshot pointer, so a Reload in progress never blocks or
// races a tool call already in flight (spec §4.10: "no tool call in flight
// is interrupted by a reload; the next call uses the new view").
type snapshot struct {
	servers map[string]*Client
}

// Manager handles MCP server lifecycle and exposes their tools to the
// toolkit registry. It implements toolkit.MCPCaller.
type Manager struct {
	config   *Config
	statuses map[string]*ServerState
	mu       sync.RWMutex

	view atomic.Pointer[snapshot]

	statusChan chan StatusUpdate
}

// NewManager creates a new MCP manager.
func NewManager() *Manager {
	m := &Manager{statuses: make(map[string]*ServerState)}
	m.view.Store(&snapshot{servers: make(map[string]*Client)})
	return m
}

// LoadConfig loads the MCP configuration from the default path.
func (m *Manager) LoadConfig() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// LoadConfigFromPath loads the MCP configuration from an explicit path,
// used by tests and by --mcp-config overrides.
func (m *Manager) LoadConfigFromPath(path string) error {
	cfg, err := LoadConfigFromPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Config returns the current configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetStatusChannel sets a channel to receive status updates.
func (m *Manager) SetStatusChannel(ch chan StatusUpdate) {
	m.mu.Lock()
	m.statusChan = ch
	m.mu.Unlock()
}

func (m *Manager) sendStatus(name string, status ServerStatus, err error) {
	m.mu.RLock()
	ch := m.statusChan
	m.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- StatusUpdate{Name: name, Status: status, Error: err}:
	default:
	}
}

// AvailableServers returns the names of all configured servers.
func (m *Manager) AvailableServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil
	}
	return m.config.ServerNames()
}

// ServerStatus returns the current status of a server.
func (m *Manager) ServerStatus(name string) (ServerStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.statuses[name]
	if !ok {
		return StatusStopped, nil
	}
	return state.Status, state.Error
}

// Enable starts an MCP server in the background and publishes its tools
// into the shared snapshot once ListTools succeeds.
func (m *Manager) Enable(ctx context.Context, name string) error {
	m.mu.Lock()
	if m.config == nil {
		m.mu.Unlock()
		return fmt.Errorf("no MCP configuration loaded")
	}
	serverCfg, ok := m.config.Servers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown MCP server: %s", name)
	}
	if state, ok := m.statuses[name]; ok && (state.Status == StatusStarting || state.Status == StatusReady) {
		m.mu.Unlock()
		return nil
	}

	client := NewClient(name, serverCfg)
	m.statuses[name] = &ServerState{Name: name, Status: StatusStarting, Client: client}
	m.mu.Unlock()

	m.sendStatus(name, StatusStarting, nil)

	go func() {
		err := client.Start(ctx)

		m.mu.Lock()
		state := m.statuses[name]
		if err != nil {
			state.Status = StatusFailed
			state.Error = err
		} else {
			state.Status = StatusReady
			state.Error = nil
		}
		m.mu.Unlock()

		m.publish()
		m.sendStatus(name, state.Status, err)
	}()

	return nil
}

// Disable stops an MCP server and republishes the snapshot without it.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	state, ok := m.statuses[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.statuses, name)
	client := state.Client
	m.mu.Unlock()

	m.publish()
	m.sendStatus(name, StatusStopped, nil)

	if client == nil {
		return nil
	}
	return client.Stop()
}

// Reload diffs the given configuration against what's currently running:
// servers no longer present are disabled, new or changed servers are
// (re)enabled. Called by internal/watch when mcp.json changes.
func (m *Manager) Reload(ctx context.Context, cfg *Config) {
	m.mu.Lock()
	old := m.config
	m.config = cfg
	running := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		running = append(running, name)
	}
	m.mu.Unlock()

	for _, name := range running {
		if _, ok := cfg.Servers[name]; !ok {
			m.Disable(name)
		}
	}
	for name, sc := range cfg.Servers {
		if old != nil {
			if prev, ok := old.Servers[name]; ok && !reflect.DeepEqual(prev, sc) {
				m.Disable(name)
			}
		}
		m.Enable(ctx, name)
	}
}

// StopAll stops every running MCP server, used on process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.statuses))
	for _, s := range m.statuses {
		if s.Client != nil {
			clients = append(clients, s.Client)
		}
	}
	m.statuses = make(map[string]*ServerState)
	m.mu.Unlock()

	m.publish()
	for _, c := range clients {
		c.Stop()
	}
}

// publish rebuilds the snapshot from the current ready servers and
// atomically swaps it in; this is the "new view replaces old on next tool
// lookup" half of §4.10.
func (m *Manager) publish() {
	m.mu.RLock()
	next := &snapshot{servers: make(map[string]*Client, len(m.statuses))}
	for name, state := range m.statuses {
		if state.Status == StatusReady && state.Client != nil {
			next.servers[name] = state.Client
		}
	}
	m.mu.RUnlock()
	m.view.Store(next)
}

// AllTools returns the specs of every tool exposed by every ready server,
// named "<server>/<tool>" per spec §6.
func (m *Manager) AllTools() []ToolSpec {
	view := m.view.Load()
	var all []ToolSpec
	for name, client := range view.servers {
		for _, t := range client.Tools() {
			all = append(all, ToolSpec{
				Name:        fmt.Sprintf("%s/%s", name, t.Name),
				Description: fmt.Sprintf("[%s] %s", name, t.Description),
				Schema:      t.Schema,
			})
		}
	}
	return all
}

// CallTool implements toolkit.MCPCaller, routing to whichever server was
// live in the snapshot at the moment of the call.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args json.RawMessage) (string, error) {
	view := m.view.Load()
	client, ok := view.servers[server]
	if !ok {
		return "", fmt.Errorf("MCP server %s is not running", server)
	}
	return client.CallTool(ctx, tool, args)
}

// GetAllStates returns the current state of all servers, for status/config
// CLI surfaces.
func (m *Manager) GetAllStates() []ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make([]ServerState, 0, len(m.statuses))
	for _, state := range m.statuses {
		states = append(states, ServerState{Name: state.Name, Status: state.Status, Error: state.Error})
	}
	return states
}
