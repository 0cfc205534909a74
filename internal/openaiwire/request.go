package openaiwire

import (
	"encoding/json"
	"fmt"
)

// ChatCompletionRequest is the inbound request body of
// POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model               string         `json:"model"`
	Messages            []Message      `json:"messages"`
	MaxTokens           *int64         `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int64         `json:"max_completion_tokens,omitempty"`
	Temperature         *float64       `json:"temperature,omitempty"`
	TopP                *float64       `json:"top_p,omitempty"`
	Stop                *Stop          `json:"stop,omitempty"`
	Stream              bool           `json:"stream,omitempty"`
	StreamOptions       *StreamOptions `json:"stream_options,omitempty"`
	Tools               []Tool         `json:"tools,omitempty"`
	ToolChoice          *ToolChoice    `json:"tool_choice,omitempty"`
	ReasoningEffort     string         `json:"reasoning_effort,omitempty"`
}

// StreamOptions carries streaming-only request flags.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Message is one inbound conversation turn. Content is nil for assistant
// turns that carry only tool calls.
type Message struct {
	Role       string          `json:"role"`
	Content    *MessageContent `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
}

// MessageContent is either a plain string or an ordered list of content
// parts. After decoding, exactly one of Text/Parts is meaningful: when Parts
// is nil the content was a string.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// IsText reports whether the content arrived as a plain string.
func (c *MessageContent) IsText() bool { return c.Parts == nil }

// PlainText flattens the content to a single string: the raw string form, or
// the concatenation of text parts.
func (c *MessageContent) PlainText() string {
	if c == nil {
		return ""
	}
	if c.Parts == nil {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// UnmarshalJSON accepts both the string and the array-of-parts encodings.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Parts = nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content is neither string nor part list: %w", err)
	}
	if parts == nil {
		parts = []ContentPart{}
	}
	c.Text = ""
	c.Parts = parts
	return nil
}

// MarshalJSON re-encodes the content in the shape it arrived in.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts == nil {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

// Content part discriminators. The tool_use/tool_result variants are not part
// of the upstream OpenAI schema but are sent by some clients that speak a
// mixed dialect; they are accepted and handled like their block equivalents.
const (
	PartText       = "text"
	PartImageURL   = "image_url"
	PartInputAudio = "input_audio"
	PartToolUse    = "tool_use"
	PartToolResult = "tool_result"
)

// ContentPart is one element of a multimodal message. Exactly the fields for
// its Type are populated.
type ContentPart struct {
	Type string `json:"type"`

	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`

	InputAudio *InputAudio `json:"input_audio,omitempty"`

	// Mixed-dialect tool_use fields.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Mixed-dialect tool_result fields. Content may be a string or a nested
	// block list, so it stays raw until the translator flattens it.
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// ImageURL references an image by HTTP URL or data URL.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// InputAudio is inline audio input. The gateway drops it: the target
// protocol has no audio modality.
type InputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// ToolCall is an assistant-issued function invocation.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the invoked function and carries its JSON-encoded
// argument string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a normalized tool definition. Both accepted wire shapes, the
// OpenAI wrapper {"type":"function","function":{...}} and the flat
// {"name":...,"input_schema":...} form, decode into this one struct.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type wrappedTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type flatTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// UnmarshalJSON resolves the two accepted tool shapes into one.
func (t *Tool) UnmarshalJSON(data []byte) error {
	var wrapped wrappedTool
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Type == "function" && wrapped.Function.Name != "" {
		t.Name = wrapped.Function.Name
		t.Description = wrapped.Function.Description
		t.Parameters = wrapped.Function.Parameters
		return nil
	}
	var flat flatTool
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("unsupported tool shape: %w", err)
	}
	if flat.Name == "" {
		return fmt.Errorf("tool definition has no name")
	}
	t.Name = flat.Name
	t.Description = flat.Description
	t.Parameters = flat.InputSchema
	return nil
}

// MarshalJSON always emits the OpenAI wrapper shape.
func (t Tool) MarshalJSON() ([]byte, error) {
	var w wrappedTool
	w.Type = "function"
	w.Function.Name = t.Name
	w.Function.Description = t.Description
	w.Function.Parameters = t.Parameters
	return json.Marshal(w)
}

// ToolChoice is either one of the mode strings ("auto", "none", "required")
// or a named-function selection. After decoding, Name is non-empty exactly
// when a specific function was requested.
type ToolChoice struct {
	Mode string
	Name string
}

type namedToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// UnmarshalJSON accepts both the string and the named-function encodings.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tc.Mode = s
		tc.Name = ""
		return nil
	}
	var named namedToolChoice
	if err := json.Unmarshal(data, &named); err != nil {
		return fmt.Errorf("unsupported tool_choice shape: %w", err)
	}
	if named.Function.Name == "" {
		return fmt.Errorf("named tool_choice has no function name")
	}
	tc.Mode = ""
	tc.Name = named.Function.Name
	return nil
}

// MarshalJSON re-encodes the choice in the shape it arrived in.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.Name != "" {
		var named namedToolChoice
		named.Type = "function"
		named.Function.Name = tc.Name
		return json.Marshal(named)
	}
	return json.Marshal(tc.Mode)
}

// Stop is the stop-sequence field: a single string or a list of strings,
// normalized to a list.
type Stop struct {
	Sequences []string
}

// UnmarshalJSON accepts both encodings.
func (s *Stop) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		s.Sequences = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop is neither string nor string list: %w", err)
	}
	s.Sequences = many
	return nil
}

// MarshalJSON always emits the list form.
func (s Stop) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sequences)
}
