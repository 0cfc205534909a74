// Package model holds the protocol-neutral representation of a chat
// conversation: messages, content blocks, tool definitions and the
// request/response/stream-chunk shapes that both translation directions
// target. It carries no dependency on either wire protocol.
package model
