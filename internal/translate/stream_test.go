package translate

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbridge/internal/model"
	"chatbridge/internal/openaiwire"
	"chatbridge/internal/thinking"
)

func chunkSource(chunks []*model.StreamChunk, tailErr error) iter.Seq2[*model.StreamChunk, error] {
	return func(yield func(*model.StreamChunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if tailErr != nil {
			yield(nil, tailErr)
		}
	}
}

func runReassembler(t *testing.T, r *Reassembler, chunks []*model.StreamChunk, tailErr error) ([]*openaiwire.ChatCompletionChunk, []error) {
	t.Helper()
	var frames []*openaiwire.ChatCompletionChunk
	var errs []error
	for frame, err := range r.Run(context.Background(), chunkSource(chunks, tailErr)) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		frames = append(frames, frame)
	}
	return frames, errs
}

func TestReassemblerTextStream(t *testing.T) {
	r := NewReassembler("m", false, nil)
	frames, errs := runReassembler(t, r, []*model.StreamChunk{
		{Type: model.ChunkStart, Model: "m"},
		{Type: model.ChunkDelta, Content: "hel"},
		{Type: model.ChunkDelta, Content: "lo"},
		{Type: model.ChunkStop, FinishReason: model.FinishStop},
	}, nil)
	require.Empty(t, errs)
	require.Len(t, frames, 4)

	// All frames share one id, created, and model.
	for _, f := range frames {
		assert.Equal(t, frames[0].ID, f.ID)
		assert.Equal(t, frames[0].Created, f.Created)
		assert.Equal(t, "m", f.Model)
		assert.Equal(t, openaiwire.ObjectChatCompletionChunk, f.Object)
	}

	assert.Equal(t, "assistant", frames[0].Choices[0].Delta.Role)
	assert.Equal(t, "hel", *frames[1].Choices[0].Delta.Content)
	assert.Equal(t, "lo", *frames[2].Choices[0].Delta.Content)

	final := frames[3].Choices[0]
	require.NotNil(t, final.FinishReason)
	assert.Equal(t, "stop", *final.FinishReason)
	// No usage frame: not requested, no token counts.
	assert.Nil(t, frames[3].Usage)
}

func TestReassemblerToolCallSplitAcrossDeltas(t *testing.T) {
	r := NewReassembler("m", false, nil)
	frames, errs := runReassembler(t, r, []*model.StreamChunk{
		{Type: model.ChunkStart, Model: "m"},
		{Type: model.ChunkToolCallStart, ToolCall: &model.StreamToolCall{Index: 0, ID: "toolu_1", Name: "lookup"}},
		{Type: model.ChunkToolCallDelta, ToolCall: &model.StreamToolCall{Index: 0, ArgumentsDelta: `{"q`}},
		{Type: model.ChunkToolCallDelta, ToolCall: &model.StreamToolCall{Index: 0, ArgumentsDelta: `":"`}},
		{Type: model.ChunkToolCallDelta, ToolCall: &model.StreamToolCall{Index: 0, ArgumentsDelta: `x"}`}},
		{Type: model.ChunkStop, FinishReason: model.FinishToolCalls},
	}, nil)
	require.Empty(t, errs)
	require.Len(t, frames, 6)

	start := frames[1].Choices[0].Delta.ToolCalls
	require.Len(t, start, 1)
	assert.Equal(t, 0, *start[0].Index)
	assert.Equal(t, "toolu_1", start[0].ID)
	assert.Equal(t, "function", start[0].Type)
	assert.Equal(t, "lookup", start[0].Function.Name)
	assert.Equal(t, "", start[0].Function.Arguments)

	var arguments string
	for _, f := range frames[2:5] {
		deltas := f.Choices[0].Delta.ToolCalls
		require.Len(t, deltas, 1)
		assert.Equal(t, 0, *deltas[0].Index)
		arguments += deltas[0].Function.Arguments
	}
	assert.Equal(t, `{"q":"x"}`, arguments)

	assert.Equal(t, "tool_calls", *frames[5].Choices[0].FinishReason)
}

func TestReassemblerUsageFrame(t *testing.T) {
	r := NewReassembler("m", true, nil)
	frames, errs := runReassembler(t, r, []*model.StreamChunk{
		{Type: model.ChunkStart, Model: "m"},
		{Type: model.ChunkStop, FinishReason: model.FinishStop, InputTokens: 11, OutputTokens: 5},
	}, nil)
	require.Empty(t, errs)
	require.Len(t, frames, 3)

	usage := frames[2]
	assert.Empty(t, usage.Choices)
	require.NotNil(t, usage.Usage)
	assert.Equal(t, int64(11), usage.Usage.PromptTokens)
	assert.Equal(t, int64(5), usage.Usage.CompletionTokens)
	assert.Equal(t, int64(16), usage.Usage.TotalTokens)
}

func TestReassemblerDefaultsFinishReason(t *testing.T) {
	r := NewReassembler("m", false, nil)
	frames, errs := runReassembler(t, r, []*model.StreamChunk{
		{Type: model.ChunkStart, Model: "m"},
		{Type: model.ChunkStop},
	}, nil)
	require.Empty(t, errs)
	assert.Equal(t, "stop", *frames[1].Choices[0].FinishReason)
}

func TestReassemblerWritesThinkingCache(t *testing.T) {
	cache := thinking.NewCache(10, time.Hour)
	r := NewReassembler("m", false, cache)

	block := model.ContentBlock{Type: model.BlockThinking, Thinking: "plan", Signature: "sig"}
	_, errs := runReassembler(t, r, []*model.StreamChunk{
		{Type: model.ChunkStart, Model: "m"},
		{Type: model.ChunkThinking, Block: &block},
		{Type: model.ChunkToolCallStart, ToolCall: &model.StreamToolCall{Index: 0, ID: "toolu_1", Name: "a"}},
		{Type: model.ChunkToolCallStart, ToolCall: &model.StreamToolCall{Index: 1, ID: "toolu_2", Name: "b"}},
		{Type: model.ChunkStop, FinishReason: model.FinishToolCalls},
	}, nil)
	require.Empty(t, errs)

	// Fan-out write: every tool id of the turn resolves to the same blocks.
	for _, id := range []string{"toolu_1", "toolu_2"} {
		got, ok := cache.Get(id)
		require.True(t, ok, id)
		require.Len(t, got, 1)
		assert.Equal(t, "plan", got[0].Thinking)
	}
}

func TestReassemblerNoCacheWriteWithoutToolCalls(t *testing.T) {
	cache := thinking.NewCache(10, time.Hour)
	r := NewReassembler("m", false, cache)

	block := model.ContentBlock{Type: model.BlockThinking, Thinking: "plan"}
	_, errs := runReassembler(t, r, []*model.StreamChunk{
		{Type: model.ChunkStart, Model: "m"},
		{Type: model.ChunkThinking, Block: &block},
		{Type: model.ChunkStop, FinishReason: model.FinishStop},
	}, nil)
	require.Empty(t, errs)
	assert.Equal(t, 0, cache.Len())
}

func TestReassemblerPassesErrorsThrough(t *testing.T) {
	r := NewReassembler("m", false, nil)
	upstream := errors.New("overloaded")

	frames, errs := runReassembler(t, r, []*model.StreamChunk{
		{Type: model.ChunkStart, Model: "m"},
		{Type: model.ChunkDelta, Content: "partial"},
	}, upstream)

	require.Len(t, frames, 2)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], upstream)
}
