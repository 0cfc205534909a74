package model

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the ContentBlock union.
type BlockType string

const (
	BlockText             BlockType = "text"
	BlockImage            BlockType = "image"
	BlockToolUse          BlockType = "tool_use"
	BlockToolResult       BlockType = "tool_result"
	BlockThinking         BlockType = "thinking"
	BlockRedactedThinking BlockType = "redacted_thinking"
)

// ImageSourceKind distinguishes inline base64 payloads from URL references.
type ImageSourceKind string

const (
	ImageSourceBase64 ImageSourceKind = "base64"
	ImageSourceURL    ImageSourceKind = "url"
)

// ImageSource carries the payload of an image block. For base64 sources Data
// holds the encoded bytes; for URL sources it holds the URL itself.
type ImageSource struct {
	Kind      ImageSourceKind `json:"kind"`
	MediaType string          `json:"media_type"`
	Data      string          `json:"data"`
}

// ToolUse is a model-issued request to invoke a named tool. Input is kept as
// the raw JSON object so that partial or unusual argument payloads survive
// translation untouched.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult carries the textual output of a prior tool invocation.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

// ContentBlock is a tagged union; exactly one payload field is populated for
// the given Type. Thinking blocks are opaque reasoning artifacts produced by
// the target model; Signature (or Data for the redacted variant) must be
// replayed verbatim on follow-up calls.
type ContentBlock struct {
	Type BlockType `json:"type"`

	Text       string       `json:"text,omitempty"`
	Source     *ImageSource `json:"source,omitempty"`
	ToolUse    *ToolUse     `json:"tool_use,omitempty"`
	ToolResult *ToolResult  `json:"tool_result,omitempty"`

	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// Message is one turn of a conversation. Content is homogeneous: either Text
// is set and Blocks is nil, or Blocks is set and Text is empty.
type Message struct {
	Role   Role           `json:"role"`
	Text   string         `json:"text,omitempty"`
	Blocks []ContentBlock `json:"blocks,omitempty"`
}

// IsText reports whether the message carries plain text rather than blocks.
func (m *Message) IsText() bool { return m.Blocks == nil }

// ToolDefinition describes a callable tool offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolChoiceKind discriminates the ToolChoice union.
type ToolChoiceKind string

const (
	ToolChoiceAuto ToolChoiceKind = "auto"
	ToolChoiceAny  ToolChoiceKind = "any"
	ToolChoiceNone ToolChoiceKind = "none"
	ToolChoiceTool ToolChoiceKind = "tool"
)

// ToolChoice constrains which tool the model may invoke. Name is only set
// when Kind is ToolChoiceTool.
type ToolChoice struct {
	Kind ToolChoiceKind `json:"kind"`
	Name string         `json:"name,omitempty"`
}

// FinishReason is the neutral termination cause of a response.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
)

// ChatRequest is the neutral request both translators target. MaxTokens is
// always positive by the time a request reaches an adapter.
type ChatRequest struct {
	Model           string
	Messages        []Message
	MaxTokens       int64
	Temperature     *float64
	TopP            *float64
	StopSequences   []string
	Stream          bool
	IncludeUsage    bool
	Tools           []ToolDefinition
	ToolChoice      *ToolChoice
	ReasoningEffort string
}

// ChatResponse is the neutral non-streaming response. ThinkingBlocks holds
// reasoning blocks observed alongside tool calls so the caller can persist
// them for later turns.
type ChatResponse struct {
	ID             string
	Model          string
	Content        string
	ToolCalls      []ToolUse
	ThinkingBlocks []ContentBlock
	InputTokens    int64
	OutputTokens   int64
	FinishReason   FinishReason
}

// StreamChunkType discriminates the StreamChunk union.
type StreamChunkType string

const (
	ChunkStart         StreamChunkType = "start"
	ChunkDelta         StreamChunkType = "delta"
	ChunkToolCallStart StreamChunkType = "tool_call_start"
	ChunkToolCallDelta StreamChunkType = "tool_call_delta"
	ChunkThinking      StreamChunkType = "thinking"
	ChunkStop          StreamChunkType = "stop"
)

// StreamToolCall carries tool-call data inside a stream chunk. Index is
// assigned once per distinct tool call within a stream, starting at 0 and
// increasing in order of first appearance. ID and Name are only present on
// the tool_call_start chunk.
type StreamToolCall struct {
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string
}

// StreamChunk is one neutral streaming event. Exactly the fields relevant to
// Type are populated: Content for delta, ToolCall for the tool_call variants,
// Block for thinking (a completed reasoning block), and the finish/usage
// fields for stop. InputTokens rides on the stop chunk even though the target
// protocol reports it at stream open.
type StreamChunk struct {
	Type StreamChunkType

	Model    string
	Content  string
	ToolCall *StreamToolCall
	Block    *ContentBlock

	FinishReason FinishReason
	InputTokens  int64
	OutputTokens int64
}

// ModelInfo describes one model offered by a provider.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}
