package anthropic

import (
	"context"
	"iter"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"chatbridge/internal/model"
)

// translateStream converts a Messages API event stream into neutral chunks.
//
// Tool-call indices are assigned in order of first appearance starting at 0,
// independent of the target's mixed content-block indices. Thinking blocks
// accumulate their deltas privately and are yielded whole on block stop so
// the consumer can persist them without reassembling fragments itself.
// Input tokens arrive at stream open but ride on the final stop chunk, where
// usage is reported in the source protocol.
func translateStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], requestedModel string) iter.Seq2[*model.StreamChunk, error] {
	return func(yield func(*model.StreamChunk, error) bool) {
		defer stream.Close()

		if !yield(&model.StreamChunk{Type: model.ChunkStart, Model: requestedModel}, nil) {
			return
		}

		toolIndexByBlock := make(map[int64]int)
		thinkingByBlock := make(map[int64]*model.ContentBlock)
		nextToolIndex := 0

		finish := model.FinishStop
		var inputTokens, outputTokens int64

		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage := ev.Message.Usage
				inputTokens = usage.InputTokens
				if usage.CacheCreationInputTokens > 0 || usage.CacheReadInputTokens > 0 {
					slog.InfoContext(ctx, "prompt cache stats",
						"created", usage.CacheCreationInputTokens,
						"read", usage.CacheReadInputTokens,
						"input_tokens", usage.InputTokens,
					)
				}

			case anthropic.ContentBlockStartEvent:
				switch ev.ContentBlock.Type {
				case "tool_use":
					idx := nextToolIndex
					nextToolIndex++
					toolIndexByBlock[ev.Index] = idx
					chunk := &model.StreamChunk{
						Type: model.ChunkToolCallStart,
						ToolCall: &model.StreamToolCall{
							Index: idx,
							ID:    ev.ContentBlock.ID,
							Name:  ev.ContentBlock.Name,
						},
					}
					if !yield(chunk, nil) {
						return
					}
				case "thinking":
					thinkingByBlock[ev.Index] = &model.ContentBlock{Type: model.BlockThinking}
				case "redacted_thinking":
					thinkingByBlock[ev.Index] = &model.ContentBlock{
						Type: model.BlockRedactedThinking,
						Data: ev.ContentBlock.Data,
					}
				}

			case anthropic.ContentBlockDeltaEvent:
				switch ev.Delta.Type {
				case "text_delta":
					if !yield(&model.StreamChunk{Type: model.ChunkDelta, Content: ev.Delta.Text}, nil) {
						return
					}
				case "input_json_delta":
					idx, ok := toolIndexByBlock[ev.Index]
					if !ok {
						// A delta for a block that never opened still belongs
						// to the first tool call.
						slog.WarnContext(ctx, "input delta for unknown tool block, assigning index 0", "block_index", ev.Index)
						idx = 0
					}
					chunk := &model.StreamChunk{
						Type: model.ChunkToolCallDelta,
						ToolCall: &model.StreamToolCall{
							Index:          idx,
							ArgumentsDelta: ev.Delta.PartialJSON,
						},
					}
					if !yield(chunk, nil) {
						return
					}
				case "thinking_delta":
					if b := thinkingByBlock[ev.Index]; b != nil {
						b.Thinking += ev.Delta.Thinking
					}
				case "signature_delta":
					if b := thinkingByBlock[ev.Index]; b != nil {
						b.Signature += ev.Delta.Signature
					}
				}

			case anthropic.ContentBlockStopEvent:
				if b, ok := thinkingByBlock[ev.Index]; ok {
					delete(thinkingByBlock, ev.Index)
					if !yield(&model.StreamChunk{Type: model.ChunkThinking, Block: b}, nil) {
						return
					}
				}

			case anthropic.MessageDeltaEvent:
				if ev.Delta.StopReason != "" {
					finish = toFinishReason(anthropic.StopReason(ev.Delta.StopReason))
				}
				if ev.Usage.OutputTokens > 0 {
					outputTokens = ev.Usage.OutputTokens
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield(nil, normalizeError(err))
			return
		}

		yield(&model.StreamChunk{
			Type:         model.ChunkStop,
			FinishReason: finish,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		}, nil)
	}
}
