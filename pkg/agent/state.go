package agent

import (
	"time"

	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
)

// Node status values recorded in the history log.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// HistoryEntry is one node execution in a query's trace. Timestamps
// serialize as RFC 3339.
type HistoryEntry struct {
	Node      string    `json:"node"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
}

// State is the per-query working state threaded through the workflow nodes.
// It is private to one in-flight query and discarded afterwards; NodeHistory
// is the observability contract and gets exactly one entry per executed
// node, on error paths included.
type State struct {
	Query         string                  `json:"query"`
	OriginalQuery string                  `json:"original_query"`
	Principal     string                  `json:"principal"`
	Messages      []ai.ChatMessage        `json:"messages"`
	Documents     []common.ScoredDocument `json:"documents"`

	ShouldUseTools bool                `json:"should_use_tools"`
	ToolCalls      []ai.ToolInvocation `json:"tool_calls,omitempty"`

	// IsRelevant is nil until grading ran; an ungraded result routes to
	// generation, not retry.
	IsRelevant *bool `json:"is_relevant,omitempty"`
	RetryCount int   `json:"retry_count"`

	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`

	NodeHistory []HistoryEntry `json:"node_history"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

func newState(query, principal string) *State {
	return &State{
		Query:         query,
		OriginalQuery: query,
		Principal:     principal,
		StartedAt:     time.Now(),
	}
}

func (s *State) record(node, status, details string) {
	s.NodeHistory = append(s.NodeHistory, HistoryEntry{
		Node:      node,
		Timestamp: time.Now(),
		Status:    status,
		Details:   details,
	})
}

func (s *State) setRelevant(v bool) {
	s.IsRelevant = &v
}
