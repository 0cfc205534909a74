package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbridge/internal/model"
	"chatbridge/internal/provider"
)

func floatPtr(v float64) *float64 { return &v }

func textMsg(role model.Role, text string) model.Message {
	return model.Message{Role: role, Text: text}
}

func TestBuildCallBasics(t *testing.T) {
	req := &model.ChatRequest{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 512,
		Messages: []model.Message{
			textMsg(model.RoleSystem, "be terse"),
			textMsg(model.RoleUser, "hello"),
		},
		Temperature:   floatPtr(0.4),
		TopP:          floatPtr(0.9),
		StopSequences: []string{"END"},
	}

	params, err := buildCall(req, false)
	require.NoError(t, err)

	assert.Equal(t, anthropic.Model("claude-sonnet-4-20250514"), params.Model)
	assert.Equal(t, int64(512), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "be terse", params.System[0].Text)
	require.Len(t, params.Messages, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, params.Messages[0].Role)
	assert.Equal(t, 0.4, params.Temperature.Value)
	assert.Equal(t, []string{"END"}, params.StopSequences)
}

func TestBuildCallCapsTemperature(t *testing.T) {
	req := &model.ChatRequest{
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   128,
		Messages:    []model.Message{textMsg(model.RoleUser, "hi")},
		Temperature: floatPtr(1.7),
	}

	params, err := buildCall(req, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, params.Temperature.Value)
}

func TestBuildCallThinkingBudget(t *testing.T) {
	for effort, budget := range map[string]int64{"low": 1024, "medium": 8192, "high": 24576} {
		req := &model.ChatRequest{
			Model:           "claude-sonnet-4-20250514",
			MaxTokens:       64000,
			Messages:        []model.Message{textMsg(model.RoleUser, "hi")},
			ReasoningEffort: effort,
		}
		params, err := buildCall(req, false)
		require.NoError(t, err)
		require.NotNil(t, params.Thinking.OfEnabled, effort)
		assert.Equal(t, budget, params.Thinking.OfEnabled.BudgetTokens, effort)
	}

	req := &model.ChatRequest{
		Model:           "claude-sonnet-4-20250514",
		MaxTokens:       64,
		Messages:        []model.Message{textMsg(model.RoleUser, "hi")},
		ReasoningEffort: "extreme",
	}
	params, err := buildCall(req, false)
	require.NoError(t, err)
	assert.Nil(t, params.Thinking.OfEnabled)
}

func TestBuildCallPromptCacheAnnotations(t *testing.T) {
	req := &model.ChatRequest{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 256,
		Messages: []model.Message{
			textMsg(model.RoleSystem, "system prompt"),
			textMsg(model.RoleUser, "first question"),
			textMsg(model.RoleAssistant, "first answer"),
			textMsg(model.RoleUser, "second question"),
		},
		Tools: []model.ToolDefinition{
			{Name: "lookup", InputSchema: map[string]any{"type": "object"}},
			{Name: "write", InputSchema: map[string]any{"type": "object"}},
		},
	}

	params, err := buildCall(req, true)
	require.NoError(t, err)

	// Trailing system block is cache-eligible.
	require.Len(t, params.System, 1)
	assert.True(t, params.System[0].CacheControl.Type != "")

	// Trailing tool only.
	require.Len(t, params.Tools, 2)
	assert.True(t, params.Tools[0].OfTool.CacheControl.Type == "")
	assert.True(t, params.Tools[1].OfTool.CacheControl.Type != "")

	// Second-to-last user turn's last block, not the newest turn.
	require.Len(t, params.Messages, 3)
	first := params.Messages[0].Content
	require.Len(t, first, 1)
	assert.True(t, first[0].OfText.CacheControl.Type != "")
	last := params.Messages[2].Content
	require.Len(t, last, 1)
	assert.True(t, last[0].OfText.CacheControl.Type == "")
}

func TestBuildCallCacheAnnotationNeedsEnoughHistory(t *testing.T) {
	req := &model.ChatRequest{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 256,
		Messages: []model.Message{
			textMsg(model.RoleUser, "only question"),
		},
	}

	params, err := buildCall(req, true)
	require.NoError(t, err)
	require.Len(t, params.Messages, 1)
	assert.True(t, params.Messages[0].Content[0].OfText.CacheControl.Type == "")
}

func TestBuildCallToolChoice(t *testing.T) {
	base := func(tc *model.ToolChoice) *model.ChatRequest {
		return &model.ChatRequest{
			Model:      "claude-sonnet-4-20250514",
			MaxTokens:  64,
			Messages:   []model.Message{textMsg(model.RoleUser, "hi")},
			Tools:      []model.ToolDefinition{{Name: "lookup"}},
			ToolChoice: tc,
		}
	}

	params, err := buildCall(base(nil), false)
	require.NoError(t, err)
	assert.NotNil(t, params.ToolChoice.OfAuto)

	params, err = buildCall(base(&model.ToolChoice{Kind: model.ToolChoiceAny}), false)
	require.NoError(t, err)
	assert.NotNil(t, params.ToolChoice.OfAny)

	params, err = buildCall(base(&model.ToolChoice{Kind: model.ToolChoiceNone}), false)
	require.NoError(t, err)
	assert.NotNil(t, params.ToolChoice.OfNone)

	params, err = buildCall(base(&model.ToolChoice{Kind: model.ToolChoiceTool, Name: "lookup"}), false)
	require.NoError(t, err)
	require.NotNil(t, params.ToolChoice.OfTool)
	assert.Equal(t, "lookup", params.ToolChoice.OfTool.Name)
}

func TestBuildCallToolSchemaSplit(t *testing.T) {
	req := &model.ChatRequest{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 64,
		Messages:  []model.Message{textMsg(model.RoleUser, "hi")},
		Tools: []model.ToolDefinition{{
			Name:        "lookup",
			Description: "look something up",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"query": map[string]any{"type": "string"}},
				"required":             []any{"query"},
				"additionalProperties": false,
			},
		}},
	}

	params, err := buildCall(req, false)
	require.NoError(t, err)
	require.Len(t, params.Tools, 1)
	tool := params.Tools[0].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, "lookup", tool.Name)
	assert.NotNil(t, tool.InputSchema.Properties)
	assert.Equal(t, []string{"query"}, tool.InputSchema.Required)
	assert.Equal(t, map[string]any{"additionalProperties": false}, tool.InputSchema.ExtraFields)
}

func TestBuildCallRestoredBlocks(t *testing.T) {
	req := &model.ChatRequest{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 64,
		Messages: []model.Message{
			{Role: model.RoleAssistant, Blocks: []model.ContentBlock{
				{Type: model.BlockThinking, Thinking: "let me check", Signature: "sig"},
				{Type: model.BlockToolUse, ToolUse: &model.ToolUse{
					ID: "toolu_1", Name: "lookup", Input: json.RawMessage(`{"query":"x"}`),
				}},
			}},
			{Role: model.RoleUser, Blocks: []model.ContentBlock{
				{Type: model.BlockToolResult, ToolResult: &model.ToolResult{ToolUseID: "toolu_1", Content: "42"}},
			}},
		},
	}

	params, err := buildCall(req, false)
	require.NoError(t, err)
	require.Len(t, params.Messages, 2)

	blocks := params.Messages[0].Content
	require.Len(t, blocks, 2)
	require.NotNil(t, blocks[0].OfThinking)
	assert.Equal(t, "let me check", blocks[0].OfThinking.Thinking)
	assert.Equal(t, "sig", blocks[0].OfThinking.Signature)
	require.NotNil(t, blocks[1].OfToolUse)
	assert.Equal(t, "toolu_1", blocks[1].OfToolUse.ID)

	result := params.Messages[1].Content
	require.Len(t, result, 1)
	require.NotNil(t, result[0].OfToolResult)
	assert.Equal(t, "toolu_1", result[0].OfToolResult.ToolUseID)
}

func TestBuildCallRejectsBrokenBlock(t *testing.T) {
	req := &model.ChatRequest{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 64,
		Messages: []model.Message{
			{Role: model.RoleUser, Blocks: []model.ContentBlock{{Type: model.BlockImage}}},
		},
	}

	_, err := buildCall(req, false)
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.KindInvalidRequest, perr.Kind)
}

func TestExtractSystemJoinsWithNewline(t *testing.T) {
	system, rest := extractSystem([]model.Message{
		textMsg(model.RoleSystem, "one"),
		textMsg(model.RoleUser, "hi"),
		textMsg(model.RoleSystem, "two"),
	})
	assert.Equal(t, "one\ntwo", system)
	require.Len(t, rest, 1)
	assert.Equal(t, model.RoleUser, rest[0].Role)
}
