package anthropic

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"chatbridge/internal/model"
)

// toFinishReason maps Messages API stop reasons to neutral finish reasons.
//
// Refusals keep their text in content and surface as content_filter, so past
// refusals round-trip through conversation history. pause_turn has no source
// protocol equivalent and maps to stop, as do unknown future reasons.
func toFinishReason(stopReason anthropic.StopReason) model.FinishReason {
	switch stopReason {
	case anthropic.StopReasonEndTurn:
		return model.FinishStop
	case anthropic.StopReasonMaxTokens:
		return model.FinishLength
	case anthropic.StopReasonStopSequence:
		return model.FinishStop
	case anthropic.StopReasonToolUse:
		return model.FinishToolCalls
	case anthropic.StopReasonRefusal:
		return model.FinishContentFilter
	default:
		return model.FinishStop
	}
}

// parseMessage converts a buffered Messages API response to the neutral
// shape. Text blocks concatenate; tool_use and thinking variants are
// collected separately so the caller can persist reasoning for later turns.
func parseMessage(msg *anthropic.Message) *model.ChatResponse {
	resp := &model.ChatResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		FinishReason: toFinishReason(msg.StopReason),
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, model.ToolUse{
				ID:    v.ID,
				Name:  v.Name,
				Input: v.Input,
			})
		case anthropic.ThinkingBlock:
			resp.ThinkingBlocks = append(resp.ThinkingBlocks, model.ContentBlock{
				Type:      model.BlockThinking,
				Thinking:  v.Thinking,
				Signature: v.Signature,
			})
		case anthropic.RedactedThinkingBlock:
			resp.ThinkingBlocks = append(resp.ThinkingBlocks, model.ContentBlock{
				Type: model.BlockRedactedThinking,
				Data: v.Data,
			})
		}
	}
	resp.Content = text.String()

	return resp
}
