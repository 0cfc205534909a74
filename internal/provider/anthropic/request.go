package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"chatbridge/internal/model"
	"chatbridge/internal/provider"
)

// buildCall translates a neutral chat request into Messages API parameters.
func buildCall(req *model.ChatRequest, promptCaching bool) (*anthropic.MessageNewParams, error) {
	system, rest := extractSystem(req.Messages)

	messages, err := buildMessages(rest, promptCaching)
	if err != nil {
		return nil, err
	}

	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  messages,
	}

	if system != "" {
		block := anthropic.TextBlockParam{Text: system}
		if promptCaching {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	if req.Temperature != nil {
		// The Messages API rejects temperatures above 1.0.
		params.Temperature = anthropic.Float(min(*req.Temperature, 1.0))
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools, promptCaching)
		params.ToolChoice = buildToolChoice(req.ToolChoice)
	}

	if thinking, ok := buildThinking(req.ReasoningEffort); ok {
		params.Thinking = thinking
	}

	return params, nil
}

// extractSystem hoists system messages out of the conversation, joining their
// text with a single newline. The remaining messages keep their order.
func extractSystem(messages []model.Message) (string, []model.Message) {
	var system string
	rest := make([]model.Message, 0, len(messages))

	for i := range messages {
		msg := &messages[i]
		if msg.Role != model.RoleSystem {
			rest = append(rest, *msg)
			continue
		}
		text := msg.Text
		if !msg.IsText() {
			text = ""
			for _, b := range msg.Blocks {
				if b.Type == model.BlockText {
					if text != "" {
						text += "\n"
					}
					text += b.Text
				}
			}
		}
		if text == "" {
			continue
		}
		if system != "" {
			system += "\n"
		}
		system += text
	}

	return system, rest
}

// buildMessages converts the non-system conversation turns. When prompt
// caching is enabled, the last content block of the second-to-last user turn
// is marked cache-eligible: the newest turn changes every call and would
// invalidate the cache, while everything before it is stable history.
func buildMessages(messages []model.Message, promptCaching bool) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))

	for i := range messages {
		msg := &messages[i]

		role := anthropic.MessageParamRoleUser
		if msg.Role == model.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}

		var blocks []anthropic.ContentBlockParamUnion
		if msg.IsText() {
			blocks = []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Text)}
		} else {
			blocks = make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
			for j := range msg.Blocks {
				block, err := buildBlock(&msg.Blocks[j])
				if err != nil {
					return nil, provider.NewInvalidRequestError(
						fmt.Sprintf("message %d, block %d: %v", i, j, err))
				}
				blocks = append(blocks, block)
			}
		}

		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	if promptCaching && len(out) >= 3 {
		var userIndices []int
		for i := range out {
			if out[i].Role == anthropic.MessageParamRoleUser {
				userIndices = append(userIndices, i)
			}
		}
		if len(userIndices) >= 2 {
			content := out[userIndices[len(userIndices)-2]].Content
			if len(content) > 0 {
				setCacheControl(&content[len(content)-1])
			}
		}
	}

	return out, nil
}

// buildBlock converts one neutral content block.
func buildBlock(b *model.ContentBlock) (anthropic.ContentBlockParamUnion, error) {
	switch b.Type {
	case model.BlockText:
		return anthropic.NewTextBlock(b.Text), nil

	case model.BlockImage:
		if b.Source == nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("image block has no source")
		}
		if b.Source.Kind == model.ImageSourceURL {
			return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: b.Source.Data}), nil
		}
		return anthropic.NewImageBlockBase64(b.Source.MediaType, b.Source.Data), nil

	case model.BlockToolUse:
		if b.ToolUse == nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("tool_use block has no payload")
		}
		return anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    b.ToolUse.ID,
				Name:  b.ToolUse.Name,
				Input: b.ToolUse.Input,
			},
		}, nil

	case model.BlockToolResult:
		if b.ToolResult == nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("tool_result block has no payload")
		}
		return anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: b.ToolResult.ToolUseID,
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: b.ToolResult.Content}},
				},
			},
		}, nil

	case model.BlockThinking:
		return anthropic.NewThinkingBlock(b.Signature, b.Thinking), nil

	case model.BlockRedactedThinking:
		return anthropic.NewRedactedThinkingBlock(b.Data), nil

	default:
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("unsupported block type %q", b.Type)
	}
}

// setCacheControl marks whichever variant the union holds as cache-eligible.
func setCacheControl(u *anthropic.ContentBlockParamUnion) {
	cc := anthropic.NewCacheControlEphemeralParam()
	switch {
	case u.OfText != nil:
		u.OfText.CacheControl = cc
	case u.OfImage != nil:
		u.OfImage.CacheControl = cc
	case u.OfToolUse != nil:
		u.OfToolUse.CacheControl = cc
	case u.OfToolResult != nil:
		u.OfToolResult.CacheControl = cc
	}
}

// buildTools converts tool definitions, splitting the flat JSON Schema into
// the Messages API's properties/required fields and carrying everything else
// in ExtraFields. The trailing tool gets a cache annotation when enabled.
func buildTools(tools []model.ToolDefinition, promptCaching bool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, def := range tools {
		tool := anthropic.ToolParam{
			Name:        def.Name,
			InputSchema: anthropic.ToolInputSchemaParam{},
		}
		if def.Description != "" {
			tool.Description = anthropic.String(def.Description)
		}

		if def.InputSchema != nil {
			if props, ok := def.InputSchema["properties"]; ok {
				tool.InputSchema.Properties = props
			}
			if raw, ok := def.InputSchema["required"].([]any); ok {
				var required []string
				for _, r := range raw {
					if s, ok := r.(string); ok {
						required = append(required, s)
					}
				}
				tool.InputSchema.Required = required
			}
			var extra map[string]any
			for key, value := range def.InputSchema {
				if key != "type" && key != "properties" && key != "required" {
					if extra == nil {
						extra = make(map[string]any)
					}
					extra[key] = value
				}
			}
			tool.InputSchema.ExtraFields = extra
		}

		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}

	if promptCaching && len(out) > 0 {
		if last := out[len(out)-1].OfTool; last != nil {
			last.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
	}

	return out
}

// buildToolChoice maps the neutral tool choice. Absent means auto, matching
// the source protocol's default when tools are present.
func buildToolChoice(tc *model.ToolChoice) anthropic.ToolChoiceUnionParam {
	if tc == nil {
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
	switch tc.Kind {
	case model.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case model.ToolChoiceAny:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case model.ToolChoiceTool:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: tc.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

// buildThinking maps reasoning effort levels to explicit thinking token
// budgets. Unknown values leave thinking unset.
func buildThinking(effort string) (anthropic.ThinkingConfigParamUnion, bool) {
	switch effort {
	case "low":
		return anthropic.ThinkingConfigParamOfEnabled(1024), true
	case "medium":
		return anthropic.ThinkingConfigParamOfEnabled(8192), true
	case "high":
		return anthropic.ThinkingConfigParamOfEnabled(24576), true
	default:
		return anthropic.ThinkingConfigParamUnion{}, false
	}
}
