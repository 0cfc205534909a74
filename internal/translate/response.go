package translate

import (
	"time"

	"github.com/google/uuid"

	"chatbridge/internal/model"
	"chatbridge/internal/openaiwire"
)

// newChatID generates a source-protocol response id. The target's own id
// (msg_...) would leak the backend, so a fresh chatcmpl id replaces it.
func newChatID() string {
	return "chatcmpl-" + uuid.New().String()
}

// Response translates a neutral buffered response into the source protocol's
// chat.completion shape with a single choice.
func Response(resp *model.ChatResponse) *openaiwire.ChatCompletion {
	message := openaiwire.ResponseMessage{Role: "assistant"}

	if resp.Content != "" || len(resp.ToolCalls) == 0 {
		content := resp.Content
		message.Content = &content
	}

	for _, tc := range resp.ToolCalls {
		arguments := "{}"
		if len(tc.Input) > 0 {
			arguments = string(tc.Input)
		}
		message.ToolCalls = append(message.ToolCalls, openaiwire.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: openaiwire.FunctionCall{
				Name:      tc.Name,
				Arguments: arguments,
			},
		})
	}

	return &openaiwire.ChatCompletion{
		ID:      newChatID(),
		Object:  openaiwire.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []openaiwire.Choice{{
			Index:        0,
			Message:      message,
			FinishReason: string(resp.FinishReason),
		}},
		Usage: &openaiwire.Usage{
			PromptTokens:     resp.InputTokens,
			CompletionTokens: resp.OutputTokens,
			TotalTokens:      resp.InputTokens + resp.OutputTokens,
		},
	}
}
