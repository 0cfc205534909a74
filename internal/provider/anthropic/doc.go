// Package anthropic adapts the neutral chat model to the Anthropic Messages
// API, letting OpenAI SDK clients talk to Claude models without code changes.
//
// The adapter handles:
//
//   - Request building: System messages are hoisted to the Messages API's
//     system field while preserving conversation order. Temperature is capped
//     at 1.0, reasoning_effort maps to an explicit thinking token budget, and
//     optional prompt-cache annotations mark the stable regions of a request
//     (system prompt, tool catalog, all-but-latest history).
//
//   - Model resolution: aliases map short names to canonical identifiers and
//     names outside the allow-list fall back to the configured default. This
//     is a silent correction, not a rejection.
//
//   - Streaming: Anthropic SSE events become neutral stream chunks with stable
//     tool-call indices. Thinking blocks are accumulated per content block and
//     surfaced whole once complete so the caller can persist them.
//
//   - Errors: SDK errors are normalized to the uniform provider error
//     taxonomy; nothing Anthropic-specific leaks past this package.
package anthropic
