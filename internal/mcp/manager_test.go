package mcp

import (
	"context"
	"testing"
)

func TestManager_ReloadDisablesRemovedServers(t *testing.T) {
	m := NewManager()
	m.config = &Config{Servers: map[string]ServerConfig{
		"fs": {Command: "echo"},
	}}
	m.statuses["fs"] = &ServerState{Name: "fs", Status: StatusReady, Client: NewClient("fs", ServerConfig{Command: "echo"})}
	m.publish()

	if len(m.AllTools()) != 0 {
		t.Fatalf("expected no tools before ListTools ever ran, got %d", len(m.AllTools()))
	}

	m.Reload(context.Background(), &Config{Servers: map[string]ServerConfig{}})

	if _, ok := m.statuses["fs"]; ok {
		t.Fatal("expected Reload to drop a server no longer present in the new config")
	}
}

func TestManager_CallToolUnknownServer(t *testing.T) {
	m := NewManager()
	if _, err := m.CallTool(context.Background(), "missing", "tool", nil); err == nil {
		t.Fatal("expected an error calling a tool on an unregistered server")
	}
}

func TestManager_AllToolsNamespacesByServer(t *testing.T) {
	m := NewManager()
	client := NewClient("fs", ServerConfig{Command: "echo"})
	m.statuses["fs"] = &ServerState{Name: "fs", Status: StatusReady, Client: client}
	client.tools = []ToolSpec{{Name: "read_file", Description: "reads a file"}}
	m.publish()

	tools := m.AllTools()
	if len(tools) != 1 || tools[0].Name != "fs/read_file" {
		t.Fatalf("expected namespaced tool name %q, got %+v", "fs/read_file", tools)
	}
}
