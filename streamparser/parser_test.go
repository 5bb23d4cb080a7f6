package streamparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParserHasNoCompletionSignalYet(t *testing.T) {
	p := New("<done>DONE</done>", nil)
	assert.False(t, p.HasCompletionSignal())
}

func TestParseUserMessageEmitsStarted(t *testing.T) {
	p := New("<done>", nil)
	line := `{"type":"user","message":{"role":"user","content":"Hello"},"session_id":"test-123"}` + "\n"

	events := p.ParseChunk(line)
	require.Len(t, events, 1)
	assert.Equal(t, KindStarted, events[0].Kind)
	assert.Equal(t, "test-123", events[0].SessionID)
	assert.Equal(t, "test-123", p.SessionID())
}

func TestParseAssistantMessage(t *testing.T) {
	p := New("<done>", nil)
	p.ParseChunk(`{"type":"user","message":{"role":"user","content":"Hello"},"session_id":"test-123"}` + "\n")

	events := p.ParseChunk(`{"type":"assistant","message":{"role":"assistant","content":"Hi there!"}}` + "\n")
	require.Len(t, events, 1)
	assert.Equal(t, KindAssistantMessage, events[0].Kind)
	assert.Equal(t, "Hi there!", events[0].Content)
}

func TestCompletionSignalDetection(t *testing.T) {
	p := New("<done>COMPLETE</done>", nil)
	line := `{"type":"assistant","message":{"role":"assistant","content":"Task finished <done>COMPLETE</done>"}}` + "\n"

	events := p.ParseChunk(line)
	assert.True(t, p.HasCompletionSignal())

	var found bool
	for _, e := range events {
		if e.Kind == KindCompletionSignal {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseResult(t *testing.T) {
	p := New("<done>", nil)
	line := `{"type":"result","duration_ms":5000,"cost_usd":0.05,"session_id":"test-123"}` + "\n"

	events := p.ParseChunk(line)
	require.Len(t, events, 1)
	assert.Equal(t, KindEnded, events[0].Kind)
	assert.Equal(t, uint64(5000), events[0].DurationMS)
	require.NotNil(t, events[0].TotalCostUSD)
	assert.InDelta(t, 0.05, *events[0].TotalCostUSD, 0.0001)
}

func TestParseToolUseAndToolResult(t *testing.T) {
	p := New("<done>", nil)
	line := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"1","name":"bash","input":{"cmd":"ls"}}]}}` + "\n"
	events := p.ParseChunk(line)
	require.Len(t, events, 1)
	assert.Equal(t, KindToolUse, events[0].Kind)
	assert.Equal(t, "bash", events[0].ToolName)

	line2 := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_result","tool_use_id":"1","content":"a.go\nb.go","is_error":false}]}}` + "\n"
	events = p.ParseChunk(line2)
	require.Len(t, events, 1)
	assert.Equal(t, KindToolResult, events[0].Kind)
	assert.Equal(t, "a.go\nb.go", events[0].ToolOutput)
}

func TestExtractCommitSHAFull(t *testing.T) {
	response := "Committed: a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0"
	assert.Equal(t, "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0", extractCommitSHA(response))
}

func TestExtractCommitSHAGitOutput(t *testing.T) {
	response := "[main abc1234] feat: add feature"
	assert.Equal(t, "abc1234", extractCommitSHA(response))
}

func TestExtractCommitSHAWithContext(t *testing.T) {
	response := "Successfully committed: abc1234"
	assert.Equal(t, "abc1234", extractCommitSHA(response))
}

func TestExtractCommitSHANoMatch(t *testing.T) {
	assert.Equal(t, "", extractCommitSHA("no hashes here"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(1), estimateTokens("test"))
	assert.Equal(t, int64(3), estimateTokens("hello world"))
	assert.Equal(t, int64(0), estimateTokens(""))
}

func TestParseIncompleteJSONWaitsForNewline(t *testing.T) {
	p := New("<done>", nil)

	events := p.ParseChunk(`{"type":"user",`)
	assert.Empty(t, events)

	events = p.ParseChunk(`"message":{"content":"test"},"session_id":"123"}`)
	assert.Empty(t, events)

	events = p.ParseChunk("\n")
	assert.Len(t, events, 1)
}

func TestParseNonJSONLineIsDiscarded(t *testing.T) {
	p := New("<done>", nil)
	events := p.ParseChunk("not json at all\n")
	assert.Empty(t, events)
}
