package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/turnforge/agentcore/internal/protocol"
)

// TodoStatus is the state of one todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// TodoItem is one entry in the turn's task list.
type TodoItem struct {
	Content    string     `json:"content"`
	Status     TodoStatus `json:"status"`
	ActiveForm string     `json:"active_form,omitempty"`
}

// TodoList holds the current turn's task list, replaced wholesale on every
// todo_write call. Items returns a copy of it; none of the reminder
// generators reads it.
type TodoList struct {
	mu    sync.Mutex
	items []TodoItem
}

func NewTodoList() *TodoList { return &TodoList{} }

func (l *TodoList) Set(items []TodoItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = items
}

func (l *TodoList) Items() []TodoItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TodoItem, len(l.items))
	copy(out, l.items)
	return out
}

// TodoWriteTool implements the built-in "todo_write" tool: replaces the
// turn's task list with the provided items, used by the model to track
// multi-step work.
type TodoWriteTool struct {
	BaseTool
	list *TodoList
}

func NewTodoWriteTool(list *TodoList) *TodoWriteTool { return &TodoWriteTool{list: list} }

type todoWriteArgs struct {
	Todos []TodoItem `json:"todos"`
}

func (t *TodoWriteTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "todo_write",
		Description: "Replace the current task list. Use to plan and track progress on multi-step work; mark items in_progress before starting them and completed as soon as they're done.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"todos": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"content":     map[string]interface{}{"type": "string"},
							"status":      map[string]interface{}{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
							"active_form": map[string]interface{}{"type": "string", "description": "Present-continuous label shown while in_progress"},
						},
						"required": []string{"content", "status"},
					},
				},
			},
			"required":             []string{"todos"},
			"additionalProperties": false,
		},
	}
}

func (t *TodoWriteTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (t *TodoWriteTool) DefaultApproval() ApprovalDefault     { return ApprovalNever }

func (t *TodoWriteTool) Validate(args json.RawMessage) error {
	var a todoWriteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return err
	}
	for i, item := range a.Todos {
		if item.Content == "" {
			return fmt.Errorf("todo %d: content is required", i+1)
		}
		switch item.Status {
		case TodoPending, TodoInProgress, TodoCompleted:
		default:
			return fmt.Errorf("todo %d: invalid status %q", i+1, item.Status)
		}
	}
	return nil
}

func (t *TodoWriteTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a todoWriteArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if t.list != nil {
		t.list.Set(a.Todos)
	}

	var sb strings.Builder
	for _, item := range a.Todos {
		mark := " "
		if item.Status == TodoCompleted {
			mark = "x"
		} else if item.Status == TodoInProgress {
			mark = "~"
		}
		fmt.Fprintf(&sb, "[%s] %s\n", mark, item.Content)
	}
	if sb.Len() == 0 {
		sb.WriteString("Task list cleared.")
	}
	return TextResult(call, strings.TrimRight(sb.String(), "\n")), nil
}
