// Package rollout implements Session Persistence (spec §4.7): a resumable
// JSONL event log, one JSON object per line, written atomically at the end
// of each turn and on session close.
//
// The teacher (internal/session) persists to SQLite instead; this package
// is grounded on original_source/codex-rs/core/src/rollout/tests.rs, the
// one surviving fragment of the system this spec's "rollout" terminology
// and file-naming scheme (rollout-<timestamp>-<uuid>.jsonl under
// sessions/YYYY/MM/DD/, newest-first listing, stable tie-broken ordering,
// up-to-five-record preview heads) comes from. GetDataDir resolves the
// unified agentcore home directory (internal/config.HomeDir) rather than
// the teacher's split XDG data directory, matching spec §6's single-root
// "~/.agentcore/" layout.
package rollout

import (
	"encoding/json"
	"time"
)

// RecordType identifies the kind of payload one rollout line carries.
type RecordType string

const (
	RecordSessionMeta       RecordType = "session_meta"
	RecordUserMessage       RecordType = "user_message"
	RecordAssistantMessage  RecordType = "assistant_message"
	RecordThinking          RecordType = "thinking"
	RecordToolCall          RecordType = "tool_call"
	RecordToolResult        RecordType = "tool_result"
	RecordSessionEvent      RecordType = "session_event"
	RecordCompactionSummary RecordType = "compaction_summary"
)

// Record is one line of a rollout file: { "timestamp", "type", "payload" }.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      RecordType      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// SessionMeta is line 1's payload, per spec §4.7.
type SessionMeta struct {
	ID               string   `json:"id"`
	ForkedFromID     string   `json:"forked_from_id,omitempty"`
	Cwd              string   `json:"cwd"`
	Originator       string   `json:"originator"`
	CLIVersion       string   `json:"cli_version"`
	Source           string   `json:"source"`
	ModelProvider    string   `json:"model_provider"`
	BaseInstructions string   `json:"base_instructions,omitempty"`
	DynamicTools     []string `json:"dynamic_tools,omitempty"`
}

// NewMetaRecord builds the mandatory line-1 record for a session.
func NewMetaRecord(ts time.Time, meta SessionMeta) (Record, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return Record{}, err
	}
	return Record{Timestamp: ts, Type: RecordSessionMeta, Payload: payload}, nil
}

// NewRecord builds a non-meta rollout line from any JSON-marshalable payload.
func NewRecord(ts time.Time, typ RecordType, payload any) (Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, err
	}
	return Record{Timestamp: ts, Type: typ, Payload: data}, nil
}

// DecodeMeta unmarshals a session_meta record's payload.
func (r Record) DecodeMeta() (SessionMeta, error) {
	var meta SessionMeta
	err := json.Unmarshal(r.Payload, &meta)
	return meta, err
}
