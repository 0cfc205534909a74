// Package openaiwire defines the OpenAI-compatible chat-completion wire
// types served by the gateway. Shapes that are polymorphic on the wire
// (string-or-parts message content, wrapped-or-flat tool definitions,
// string-or-object tool choice, string-or-list stop) are resolved into
// explicit tagged forms once, at JSON decode time, so the rest of the
// codebase never probes dynamic shapes.
package openaiwire
