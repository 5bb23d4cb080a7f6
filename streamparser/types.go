// Package streamparser implements the Stream Parser (C6): it turns an
// agent's newline-delimited JSON output into typed session events and
// maintains running totals. Direct Go port of
// original_source/src/platforms/stream_parser.rs.
package streamparser

import "time"

// EndReason is why an agent session ended, reported on an Ended event.
type EndReason string

const (
	EndCompleted     EndReason = "completed"
	EndMaxTurns      EndReason = "max_turns"
	EndTimeout       EndReason = "timeout"
	EndUserStopped   EndReason = "user_stopped"
	EndError         EndReason = "error"
	EndProcessExited EndReason = "process_exited"
)

// Kind discriminates an Event's variant (Go's flattened-struct substitute
// for Rust's SessionEvent enum, same rationale as domain/event.Event).
type Kind string

const (
	KindStarted           Kind = "started"
	KindUserMessage       Kind = "user_message"
	KindAssistantMessage  Kind = "assistant_message"
	KindToolUse           Kind = "tool_use"
	KindToolResult        Kind = "tool_result"
	KindSystem            Kind = "system"
	KindCompletionSignal  Kind = "completion_signal"
	KindEnded             Kind = "ended"
)

// Event is one parsed record from the agent's output stream.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	SessionID string // Started
	Content   string // UserMessage / AssistantMessage

	ToolName   string // ToolUse / ToolResult
	ToolInput  []byte // ToolUse, raw JSON
	ToolOutput string // ToolResult
	ToolIsError bool  // ToolResult

	SystemMessage string // System

	EndResult      EndReason // Ended
	DurationMS     uint64    // Ended
	TotalCostUSD   *float64  // Ended
}
