package streamparser

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cardforge/cardforge/internal/obslog"
)

// messageEnvelope covers every field any of the four recognized record
// types may carry; unused fields are simply left at their zero value for a
// given type, the Go idiom for what the Rust source expresses as a tagged
// enum over four distinct struct variants.
type messageEnvelope struct {
	Type       string          `json:"type"`
	Message    json.RawMessage `json:"message"`
	SessionID  *string         `json:"session_id"`
	DurationMS *uint64         `json:"duration_ms"`
	CostUSD    *float64        `json:"cost_usd"`
	IsError    bool            `json:"is_error"`
}

type messageContent struct {
	Role    *string         `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type        string          `json:"type"`
	Text        string          `json:"text"`
	Name        string          `json:"name"`
	Input       json.RawMessage `json:"input"`
	ToolContent string          `json:"content"`
	IsError     bool            `json:"is_error"`
}

// Parser maintains running totals across a single agent session's output
// stream. Not safe for concurrent use from multiple goroutines — the
// Agent Platform Adapter (C5) owns exactly one parser per session and
// feeds it from a single stdout-reading goroutine.
type Parser struct {
	buffer             string
	sessionID          string
	completionSignal   string
	totalCost          float64
	estimatedTokens    int64
	iterationCount     int32
	lastResponse       string
	completionDetected bool
	log                *obslog.Logger
}

// New constructs a Parser that watches for completionSignal in assistant
// text content.
func New(completionSignal string, log *obslog.Logger) *Parser {
	if log == nil {
		log = obslog.Noop()
	}
	return &Parser{completionSignal: completionSignal, log: log}
}

// ParseChunk appends data to the internal buffer and parses every complete
// (newline-terminated) record it now contains, returning one Event per
// recognized record. Incomplete trailing data is retained for the next
// call.
func (p *Parser) ParseChunk(data string) []Event {
	p.buffer += data

	var events []Event
	for {
		idx := strings.IndexByte(p.buffer, '\n')
		if idx < 0 {
			break
		}
		line := p.buffer[:idx]
		p.buffer = p.buffer[idx+1:]
		if e := p.parseLine(line); e != nil {
			events = append(events, *e)
		}
	}
	return events
}

func (p *Parser) parseLine(line string) *Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !gjson.Valid(line) {
		p.log.Debugf("discarding non-JSON agent output line: %s", line)
		return nil
	}

	// Cheap field probe before committing to a full unmarshal: most
	// malformed or uninteresting lines are rejected here without ever
	// allocating a messageEnvelope.
	typ := gjson.Get(line, "type").String()
	switch typ {
	case "user", "assistant", "system", "result":
	default:
		p.log.Debugf("discarding unrecognized record type %q", typ)
		return nil
	}

	var env messageEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		p.log.Debugf("failed to unmarshal agent output line: %v", err)
		return nil
	}

	now := time.Now().UTC()
	switch typ {
	case "user":
		return p.handleUser(now, env)
	case "assistant":
		return p.handleAssistant(now, env)
	case "system":
		return p.handleSystem(now, env)
	case "result":
		return p.handleResult(now, env)
	}
	return nil
}

func (p *Parser) handleUser(now time.Time, env messageEnvelope) *Event {
	if p.sessionID == "" && env.SessionID != nil {
		p.sessionID = *env.SessionID
		return &Event{Kind: KindStarted, Timestamp: now, SessionID: *env.SessionID}
	}

	var content messageContent
	_ = json.Unmarshal(env.Message, &content)
	text := contentAsText(content.Content)
	p.estimatedTokens += estimateTokens(text)

	return &Event{Kind: KindUserMessage, Timestamp: now, Content: text}
}

func (p *Parser) handleAssistant(now time.Time, env messageEnvelope) *Event {
	if p.sessionID == "" && env.SessionID != nil {
		p.sessionID = *env.SessionID
	}
	p.iterationCount++

	var content messageContent
	_ = json.Unmarshal(env.Message, &content)

	if isJSONArray(content.Content) {
		var blocks []contentBlock
		_ = json.Unmarshal(content.Content, &blocks)
		for _, b := range blocks {
			switch b.Type {
			case "tool_use":
				return &Event{Kind: KindToolUse, Timestamp: now, ToolName: b.Name, ToolInput: []byte(b.Input)}
			case "tool_result":
				return &Event{Kind: KindToolResult, Timestamp: now, ToolName: "unknown", ToolOutput: b.ToolContent, ToolIsError: b.IsError}
			case "text":
				if e := p.observeAssistantText(now, b.Text); e != nil {
					return e
				}
			}
		}
	} else {
		text := jsonString(content.Content)
		if e := p.observeAssistantText(now, text); e != nil {
			return e
		}
	}

	return &Event{Kind: KindAssistantMessage, Timestamp: now, Content: contentAsText(content.Content)}
}

// observeAssistantText records one text block's contribution to
// last_response/estimated_tokens and returns a CompletionSignal event the
// first time the completion sentinel appears in it.
func (p *Parser) observeAssistantText(now time.Time, text string) *Event {
	p.lastResponse = text
	p.estimatedTokens += estimateTokens(text)
	if p.completionSignal != "" && strings.Contains(text, p.completionSignal) {
		p.completionDetected = true
		return &Event{Kind: KindCompletionSignal, Timestamp: now}
	}
	return nil
}

func (p *Parser) handleSystem(now time.Time, env messageEnvelope) *Event {
	var msg string
	_ = json.Unmarshal(env.Message, &msg)
	return &Event{Kind: KindSystem, Timestamp: now, SystemMessage: msg}
}

func (p *Parser) handleResult(now time.Time, env messageEnvelope) *Event {
	if env.CostUSD != nil {
		p.totalCost += *env.CostUSD
	}

	var reason EndReason
	switch {
	case p.completionDetected:
		reason = EndCompleted
	case env.IsError:
		reason = EndError
	default:
		reason = EndProcessExited
	}

	var duration uint64
	if env.DurationMS != nil {
		duration = *env.DurationMS
	}
	cost := p.totalCost

	return &Event{
		Kind:         KindEnded,
		Timestamp:    now,
		EndResult:    reason,
		DurationMS:   duration,
		TotalCostUSD: &cost,
	}
}

// SessionID returns the platform session id captured from the first user
// record, or "" if none has been seen yet.
func (p *Parser) SessionID() string { return p.sessionID }

// HasCompletionSignal reports whether the completion sentinel has been seen.
func (p *Parser) HasCompletionSignal() bool { return p.completionDetected }

// TotalCost returns the accumulated cost in USD, from `result` records.
func (p *Parser) TotalCost() float64 { return p.totalCost }

// EstimatedTokens returns the running estimated token count.
func (p *Parser) EstimatedTokens() int64 { return p.estimatedTokens }

// IterationCount returns the number of assistant records seen.
func (p *Parser) IterationCount() int32 { return p.iterationCount }

// LastResponse returns the most recent assistant text block.
func (p *Parser) LastResponse() string { return p.lastResponse }

// ExtractCommitSHA extracts a commit hash from the last assistant response,
// per the pattern precedence in extractCommitSHA.
func (p *Parser) ExtractCommitSHA() string { return extractCommitSHA(p.lastResponse) }

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func jsonString(raw json.RawMessage) string {
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func contentAsText(raw json.RawMessage) string {
	if isJSONArray(raw) {
		var blocks []contentBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return ""
		}
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			switch b.Type {
			case "text":
				parts = append(parts, b.Text)
			case "tool_result":
				parts = append(parts, b.ToolContent)
			}
		}
		return strings.Join(parts, "\n")
	}
	return jsonString(raw)
}

// estimateTokens approximates token count at ~4 characters per token,
// rounding up, matching original_source's estimate_tokens.
func estimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64(math.Ceil(float64(len(text)) / 4.0))
}
