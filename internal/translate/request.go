package translate

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"chatbridge/internal/model"
	"chatbridge/internal/openaiwire"
	"chatbridge/internal/provider"
	"chatbridge/internal/thinking"
)

// Options carries the translation defaults that are configuration, not
// request data.
type Options struct {
	// DefaultMaxTokens is used when the request names no token budget.
	DefaultMaxTokens int64
}

// Request translates an inbound chat-completion request into the neutral
// form, using resolvedModel as the target model id. The cache supplies
// reasoning blocks for replayed assistant turns that carry tool calls.
func Request(ctx context.Context, src *openaiwire.ChatCompletionRequest, resolvedModel string, cache *thinking.Cache, opts Options) (*model.ChatRequest, error) {
	maxTokens := opts.DefaultMaxTokens
	if src.MaxTokens != nil {
		maxTokens = *src.MaxTokens
	}
	if src.MaxCompletionTokens != nil {
		maxTokens = *src.MaxCompletionTokens
	}
	if maxTokens <= 0 {
		return nil, provider.NewInvalidRequestError("max_tokens must be positive")
	}

	toolIDsByTurn := scanToolCallIDs(src.Messages)

	var (
		systemParts []string
		messages    []model.Message
		pending     []model.ContentBlock
	)

	flushToolResults := func() {
		if len(pending) == 0 {
			return
		}
		messages = append(messages, model.Message{Role: model.RoleUser, Blocks: pending})
		pending = nil
	}

	for i := range src.Messages {
		msg := &src.Messages[i]

		switch msg.Role {
		case "system", "developer":
			if text := msg.Content.PlainText(); text != "" {
				systemParts = append(systemParts, text)
			}

		case "tool":
			if msg.ToolCallID == "" {
				continue
			}
			pending = append(pending, model.ContentBlock{
				Type: model.BlockToolResult,
				ToolResult: &model.ToolResult{
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content.PlainText(),
				},
			})

		case "assistant":
			flushToolResults()
			if ids := toolIDsByTurn[i]; len(ids) > 0 {
				if m, ok := assistantToolTurn(ctx, msg, ids, cache); ok {
					messages = append(messages, m)
				}
				continue
			}
			if m, ok := plainTurn(ctx, model.RoleAssistant, msg); ok {
				messages = append(messages, m)
			}

		default:
			flushToolResults()
			if m, ok := plainTurn(ctx, model.RoleUser, msg); ok {
				messages = append(messages, m)
			}
		}
	}
	flushToolResults()

	if len(systemParts) > 0 {
		system := model.Message{Role: model.RoleSystem, Text: strings.Join(systemParts, "\n")}
		messages = append([]model.Message{system}, messages...)
	}

	req := &model.ChatRequest{
		Model:           resolvedModel,
		Messages:        messages,
		MaxTokens:       maxTokens,
		Temperature:     src.Temperature,
		TopP:            src.TopP,
		StopSequences:   filterStop(src.Stop),
		Stream:          src.Stream,
		ReasoningEffort: src.ReasoningEffort,
	}

	if src.StreamOptions != nil {
		req.IncludeUsage = src.StreamOptions.IncludeUsage
	}

	for _, tool := range src.Tools {
		req.Tools = append(req.Tools, model.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	req.ToolChoice = mapToolChoice(src.ToolChoice)

	return req, nil
}

// scanToolCallIDs collects, per assistant turn, every tool-call id belonging
// to that turn: the turn's own tool_calls list, inline tool_use parts, and
// the tool_use_id of any tool result up to the next assistant turn. Clients
// speak different dialects, so all three sources count. Order of first
// appearance is kept, duplicates dropped.
func scanToolCallIDs(messages []openaiwire.Message) map[int][]string {
	out := make(map[int][]string)

	for i := range messages {
		if messages[i].Role != "assistant" {
			continue
		}

		var ids []string
		for _, tc := range messages[i].ToolCalls {
			ids = append(ids, tc.ID)
		}
		ids = append(ids, inlinePartIDs(&messages[i], openaiwire.PartToolUse)...)

		for j := i + 1; j < len(messages); j++ {
			next := &messages[j]
			if next.Role == "assistant" {
				break
			}
			if next.Role == "tool" && next.ToolCallID != "" {
				ids = append(ids, next.ToolCallID)
			}
			ids = append(ids, inlinePartIDs(next, openaiwire.PartToolResult)...)
		}

		if unique := dedupe(ids); len(unique) > 0 {
			out[i] = unique
		}
	}

	return out
}

func inlinePartIDs(msg *openaiwire.Message, partType string) []string {
	if msg.Content == nil || msg.Content.IsText() {
		return nil
	}
	var ids []string
	for _, part := range msg.Content.Parts {
		if part.Type != partType {
			continue
		}
		switch partType {
		case openaiwire.PartToolUse:
			if part.ID != "" {
				ids = append(ids, part.ID)
			}
		case openaiwire.PartToolResult:
			if part.ToolUseID != "" {
				ids = append(ids, part.ToolUseID)
			}
		}
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// assistantToolTurn rebuilds an assistant turn that carried tool calls.
// Cached reasoning blocks come first: the target protocol requires thinking
// to precede tool_use when extended thinking is on. All tool calls of one
// turn share one reasoning episode, so the first cache hit wins.
func assistantToolTurn(ctx context.Context, msg *openaiwire.Message, toolIDs []string, cache *thinking.Cache) (model.Message, bool) {
	var blocks []model.ContentBlock

	restored := false
	if cache != nil {
		for _, id := range toolIDs {
			if cached, ok := cache.Get(id); ok {
				blocks = append(blocks, cached...)
				restored = true
				break
			}
		}
	}
	if !restored {
		// Not fatal here: the target rejects the call only when thinking
		// is enabled, and that surfaces as a normal upstream error.
		slog.WarnContext(ctx, "no cached thinking blocks for assistant tool turn",
			"tool_call_ids", toolIDs)
	}

	if msg.Content != nil && msg.Content.IsText() && msg.Content.Text != "" {
		blocks = append(blocks, model.TextBlock(msg.Content.Text))
	}

	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, model.ContentBlock{
			Type: model.BlockToolUse,
			ToolUse: &model.ToolUse{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: parseArguments(ctx, tc.Function.Arguments),
			},
		})
	}

	if msg.Content != nil && !msg.Content.IsText() {
		for _, part := range msg.Content.Parts {
			switch part.Type {
			case openaiwire.PartText:
				if part.Text != "" {
					blocks = append(blocks, model.TextBlock(part.Text))
				}
			case openaiwire.PartToolUse:
				input := part.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, model.ContentBlock{
					Type:    model.BlockToolUse,
					ToolUse: &model.ToolUse{ID: part.ID, Name: part.Name, Input: input},
				})
			}
		}
	}

	if len(blocks) == 0 {
		return model.Message{}, false
	}
	return model.Message{Role: model.RoleAssistant, Blocks: blocks}, true
}

// plainTurn converts a message without tool calls. String content passes
// through; part lists become blocks, with audio dropped (the target protocol
// has no audio modality) and inline tool blocks accepted for clients that
// speak the mixed dialect.
func plainTurn(ctx context.Context, role model.Role, msg *openaiwire.Message) (model.Message, bool) {
	if msg.Content == nil {
		return model.Message{}, false
	}
	if msg.Content.IsText() {
		return model.Message{Role: role, Text: msg.Content.Text}, true
	}

	var blocks []model.ContentBlock
	for _, part := range msg.Content.Parts {
		switch part.Type {
		case openaiwire.PartText:
			blocks = append(blocks, model.TextBlock(part.Text))

		case openaiwire.PartImageURL:
			if part.ImageURL == nil {
				continue
			}
			source, ok := imageSource(ctx, part.ImageURL.URL)
			if !ok {
				continue
			}
			blocks = append(blocks, model.ContentBlock{Type: model.BlockImage, Source: source})

		case openaiwire.PartInputAudio:
			slog.WarnContext(ctx, "dropping audio content part, target protocol has no audio modality")

		case openaiwire.PartToolUse:
			input := part.Input
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			blocks = append(blocks, model.ContentBlock{
				Type:    model.BlockToolUse,
				ToolUse: &model.ToolUse{ID: part.ID, Name: part.Name, Input: input},
			})

		case openaiwire.PartToolResult:
			blocks = append(blocks, model.ContentBlock{
				Type: model.BlockToolResult,
				ToolResult: &model.ToolResult{
					ToolUseID: part.ToolUseID,
					Content:   flattenToolResultContent(part.Content),
				},
			})
		}
	}

	if len(blocks) == 0 {
		return model.Message{}, false
	}
	return model.Message{Role: role, Blocks: blocks}, true
}

// imageSource splits a data URL into (media_type, payload); HTTP URLs pass
// through. Anything else is dropped with a log line.
func imageSource(ctx context.Context, url string) (*model.ImageSource, bool) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return &model.ImageSource{Kind: model.ImageSourceURL, Data: url}, true
	}

	if strings.HasPrefix(url, "data:") {
		meta, data, found := strings.Cut(url, ",")
		if !found {
			slog.WarnContext(ctx, "dropping malformed image data URL")
			return nil, false
		}
		mediaType, _, _ := strings.Cut(strings.TrimPrefix(meta, "data:"), ";")
		if mediaType == "" {
			mediaType = "image/jpeg"
		}
		return &model.ImageSource{Kind: model.ImageSourceBase64, MediaType: mediaType, Data: data}, true
	}

	slog.WarnContext(ctx, "dropping image with unsupported URL scheme")
	return nil, false
}

// flattenToolResultContent reduces a tool result payload to plain text. The
// mixed dialect sends either a string or a list of text blocks.
func flattenToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var texts []string
		for _, p := range parts {
			if p.Type == "text" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	return string(raw)
}

// parseArguments decodes a tool call's argument string. Malformed JSON is
// recovered as {"raw": <original>} instead of failing the whole request.
func parseArguments(ctx context.Context, arguments string) json.RawMessage {
	if arguments == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}

	slog.WarnContext(ctx, "malformed tool call arguments, wrapping as raw", "len", len(arguments))
	wrapped, err := json.Marshal(map[string]string{"raw": arguments})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return wrapped
}

// filterStop drops whitespace-only stop sequences; when none remain the
// field is omitted entirely.
func filterStop(stop *openaiwire.Stop) []string {
	if stop == nil {
		return nil
	}
	var out []string
	for _, s := range stop.Sequences {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func mapToolChoice(tc *openaiwire.ToolChoice) *model.ToolChoice {
	if tc == nil {
		return nil
	}
	if tc.Name != "" {
		return &model.ToolChoice{Kind: model.ToolChoiceTool, Name: tc.Name}
	}
	switch tc.Mode {
	case "auto":
		return &model.ToolChoice{Kind: model.ToolChoiceAuto}
	case "none":
		return &model.ToolChoice{Kind: model.ToolChoiceNone}
	case "required":
		return &model.ToolChoice{Kind: model.ToolChoiceAny}
	default:
		return nil
	}
}
