package translate

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"chatbridge/internal/model"
	"chatbridge/internal/openaiwire"
	"chatbridge/internal/thinking"
)

// Reassembler re-emits a neutral chunk stream as chat.completion.chunk
// frames sharing one id, timestamp and model. It also observes the stream's
// tool-call ids and completed reasoning blocks; when the turn finishes with
// both present, the blocks are written into the thinking cache under every
// id (fan-out, shared value) so later turns can restore them.
type Reassembler struct {
	id           string
	created      int64
	model        string
	includeUsage bool
	cache        *thinking.Cache
}

// NewReassembler creates a reassembler for one response stream. model is the
// id to report in every frame; cache may be nil when no reasoning
// persistence is wanted.
func NewReassembler(model string, includeUsage bool, cache *thinking.Cache) *Reassembler {
	return &Reassembler{
		id:           newChatID(),
		created:      time.Now().Unix(),
		model:        model,
		includeUsage: includeUsage,
		cache:        cache,
	}
}

// Run converts the neutral chunks into wire frames. Errors from the source
// pass through unchanged so the transport layer can emit them in-band. The
// [DONE] sentinel is the transport's job, not a frame.
func (r *Reassembler) Run(ctx context.Context, chunks iter.Seq2[*model.StreamChunk, error]) iter.Seq2[*openaiwire.ChatCompletionChunk, error] {
	return func(yield func(*openaiwire.ChatCompletionChunk, error) bool) {
		var (
			toolIDs        []string
			thinkingBlocks []model.ContentBlock
		)

		for chunk, err := range chunks {
			if err != nil {
				yield(nil, err)
				return
			}

			switch chunk.Type {
			case model.ChunkStart:
				delta := openaiwire.Delta{Role: "assistant"}
				if !yield(r.frame(delta, nil), nil) {
					return
				}

			case model.ChunkDelta:
				content := chunk.Content
				delta := openaiwire.Delta{Content: &content}
				if !yield(r.frame(delta, nil), nil) {
					return
				}

			case model.ChunkToolCallStart:
				tc := chunk.ToolCall
				toolIDs = append(toolIDs, tc.ID)
				index := tc.Index
				delta := openaiwire.Delta{ToolCalls: []openaiwire.ToolCall{{
					Index: &index,
					ID:    tc.ID,
					Type:  "function",
					Function: openaiwire.FunctionCall{
						Name:      tc.Name,
						Arguments: "",
					},
				}}}
				if !yield(r.frame(delta, nil), nil) {
					return
				}

			case model.ChunkToolCallDelta:
				tc := chunk.ToolCall
				index := tc.Index
				delta := openaiwire.Delta{ToolCalls: []openaiwire.ToolCall{{
					Index: &index,
					Function: openaiwire.FunctionCall{
						Arguments: tc.ArgumentsDelta,
					},
				}}}
				if !yield(r.frame(delta, nil), nil) {
					return
				}

			case model.ChunkThinking:
				if chunk.Block != nil {
					thinkingBlocks = append(thinkingBlocks, *chunk.Block)
				}

			case model.ChunkStop:
				finish := string(chunk.FinishReason)
				if finish == "" {
					finish = string(model.FinishStop)
				}
				if !yield(r.frame(openaiwire.Delta{}, &finish), nil) {
					return
				}

				if r.includeUsage || chunk.InputTokens > 0 || chunk.OutputTokens > 0 {
					usage := &openaiwire.Usage{
						PromptTokens:     chunk.InputTokens,
						CompletionTokens: chunk.OutputTokens,
						TotalTokens:      chunk.InputTokens + chunk.OutputTokens,
					}
					if !yield(r.usageFrame(usage), nil) {
						return
					}
				}

				r.persistThinking(ctx, toolIDs, thinkingBlocks)
			}
		}
	}
}

// persistThinking fans the turn's reasoning blocks out to every tool-call id
// observed in the stream.
func (r *Reassembler) persistThinking(ctx context.Context, toolIDs []string, blocks []model.ContentBlock) {
	if r.cache == nil || len(toolIDs) == 0 || len(blocks) == 0 {
		return
	}
	r.cache.Put(toolIDs, blocks)
	slog.DebugContext(ctx, "cached thinking blocks",
		"tool_call_ids", toolIDs, "blocks", len(blocks))
}

func (r *Reassembler) frame(delta openaiwire.Delta, finishReason *string) *openaiwire.ChatCompletionChunk {
	return &openaiwire.ChatCompletionChunk{
		ID:      r.id,
		Object:  openaiwire.ObjectChatCompletionChunk,
		Created: r.created,
		Model:   r.model,
		Choices: []openaiwire.ChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
	}
}

// usageFrame is the trailing usage-only frame: no choices, usage set.
func (r *Reassembler) usageFrame(usage *openaiwire.Usage) *openaiwire.ChatCompletionChunk {
	return &openaiwire.ChatCompletionChunk{
		ID:      r.id,
		Object:  openaiwire.ObjectChatCompletionChunk,
		Created: r.created,
		Model:   r.model,
		Choices: []openaiwire.ChunkChoice{},
		Usage:   usage,
	}
}
