// Package translate converts between the OpenAI chat-completion wire format
// and the neutral chat model.
//
// Request translation walks the inbound conversation once: system and
// developer messages coalesce into a single leading system turn, consecutive
// tool-result messages merge into one synthetic user turn, and assistant
// turns that carry tool calls are prefixed with the reasoning blocks cached
// from the stream that produced those calls. Response translation is the
// reverse direction for buffered completions, and the Reassembler re-emits a
// neutral chunk stream as protocol-correct chat.completion.chunk frames.
package translate
