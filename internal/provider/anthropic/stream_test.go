package anthropic

import (
	"context"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbridge/internal/model"
)

// fakeDecoder feeds canned SSE events into the SDK stream wrapper, driving
// translateStream exactly as a live response would.
type fakeDecoder struct {
	events []ssestream.Event
	pos    int
}

var _ ssestream.Decoder = (*fakeDecoder)(nil)

func (d *fakeDecoder) Next() bool {
	if d.pos < len(d.events) {
		d.pos++
		return true
	}
	return false
}

func (d *fakeDecoder) Event() ssestream.Event { return d.events[d.pos-1] }
func (d *fakeDecoder) Close() error           { return nil }
func (d *fakeDecoder) Err() error             { return nil }

func eventStream(events ...ssestream.Event) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	return ssestream.NewStream[anthropic.MessageStreamEventUnion](&fakeDecoder{events: events}, nil)
}

func sseEvent(eventType, data string) ssestream.Event {
	return ssestream.Event{Type: eventType, Data: []byte(data)}
}

func collect(t *testing.T, stream *ssestream.Stream[anthropic.MessageStreamEventUnion]) ([]*model.StreamChunk, []error) {
	t.Helper()
	var chunks []*model.StreamChunk
	var errs []error
	for chunk, err := range translateStream(context.Background(), stream, "claude-sonnet-4-20250514") {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, errs
}

func TestTranslateStreamTextAndToolCalls(t *testing.T) {
	stream := eventStream(
		sseEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-20250514","usage":{"input_tokens":12}}}`),
		sseEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`),
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me check."}}`),
		sseEvent("content_block_stop", `{"type":"content_block_stop","index":0}`),
		sseEvent("content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"lookup","input":{}}}`),
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"query\":"}}`),
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"x\"}"}}`),
		sseEvent("content_block_stop", `{"type":"content_block_stop","index":1}`),
		sseEvent("content_block_start", `{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_2","name":"write","input":{}}}`),
		sseEvent("content_block_stop", `{"type":"content_block_stop","index":2}`),
		sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":9}}`),
		sseEvent("message_stop", `{"type":"message_stop"}`),
	)

	chunks, errs := collect(t, stream)
	require.Empty(t, errs)
	require.Len(t, chunks, 7)

	assert.Equal(t, model.ChunkStart, chunks[0].Type)
	assert.Equal(t, "claude-sonnet-4-20250514", chunks[0].Model)

	assert.Equal(t, model.ChunkDelta, chunks[1].Type)
	assert.Equal(t, "Let me check.", chunks[1].Content)

	// Tool indices are dense from 0 regardless of content-block indices.
	assert.Equal(t, model.ChunkToolCallStart, chunks[2].Type)
	assert.Equal(t, 0, chunks[2].ToolCall.Index)
	assert.Equal(t, "toolu_1", chunks[2].ToolCall.ID)
	assert.Equal(t, "lookup", chunks[2].ToolCall.Name)

	assert.Equal(t, model.ChunkToolCallDelta, chunks[3].Type)
	assert.Equal(t, 0, chunks[3].ToolCall.Index)
	assert.Equal(t, `{"query":`, chunks[3].ToolCall.ArgumentsDelta)

	assert.Equal(t, model.ChunkToolCallDelta, chunks[4].Type)
	assert.Equal(t, `"x"}`, chunks[4].ToolCall.ArgumentsDelta)

	assert.Equal(t, model.ChunkToolCallStart, chunks[5].Type)
	assert.Equal(t, 1, chunks[5].ToolCall.Index)
	assert.Equal(t, "toolu_2", chunks[5].ToolCall.ID)

	stop := chunks[6]
	assert.Equal(t, model.ChunkStop, stop.Type)
	assert.Equal(t, model.FinishToolCalls, stop.FinishReason)
	assert.Equal(t, int64(12), stop.InputTokens)
	assert.Equal(t, int64(9), stop.OutputTokens)
}

func TestTranslateStreamOrphanInputDeltaFallsBackToFirstTool(t *testing.T) {
	stream := eventStream(
		sseEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","usage":{"input_tokens":3}}}`),
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":5,"delta":{"type":"input_json_delta","partial_json":"{\"q\":1}"}}`),
		sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":2}}`),
		sseEvent("message_stop", `{"type":"message_stop"}`),
	)

	chunks, errs := collect(t, stream)
	require.Empty(t, errs)
	require.Len(t, chunks, 3)

	// No content_block_start ever opened index 5; the delta is still emitted,
	// attributed to the first tool call.
	delta := chunks[1]
	assert.Equal(t, model.ChunkToolCallDelta, delta.Type)
	require.NotNil(t, delta.ToolCall)
	assert.Equal(t, 0, delta.ToolCall.Index)
	assert.Equal(t, `{"q":1}`, delta.ToolCall.ArgumentsDelta)
}

func TestTranslateStreamAssemblesThinkingBlocks(t *testing.T) {
	stream := eventStream(
		sseEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","usage":{"input_tokens":3}}}`),
		sseEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`),
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"step one, "}}`),
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"step two"}}`),
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig123"}}`),
		sseEvent("content_block_stop", `{"type":"content_block_stop","index":0}`),
		sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}`),
		sseEvent("message_stop", `{"type":"message_stop"}`),
	)

	chunks, errs := collect(t, stream)
	require.Empty(t, errs)
	require.Len(t, chunks, 3)

	thinking := chunks[1]
	assert.Equal(t, model.ChunkThinking, thinking.Type)
	require.NotNil(t, thinking.Block)
	assert.Equal(t, model.BlockThinking, thinking.Block.Type)
	assert.Equal(t, "step one, step two", thinking.Block.Thinking)
	assert.Equal(t, "sig123", thinking.Block.Signature)

	assert.Equal(t, model.FinishStop, chunks[2].FinishReason)
}

func TestTranslateStreamInBandError(t *testing.T) {
	stream := eventStream(
		sseEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","usage":{"input_tokens":3}}}`),
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`),
		sseEvent("error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`),
	)

	chunks, errs := collect(t, stream)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "Overloaded")

	// The start frame and partial text were already delivered.
	require.Len(t, chunks, 2)
	assert.Equal(t, model.ChunkStart, chunks[0].Type)
	assert.Equal(t, "partial", chunks[1].Content)
}
