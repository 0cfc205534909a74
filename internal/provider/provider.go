// Package provider defines the adapter boundary between the gateway core and
// concrete model backends, plus the registry that routes requests to them.
//
// An adapter owns everything backend-specific: its SDK, its wire protocol,
// its model naming, its error shapes. The rest of the gateway only ever sees
// the neutral types of internal/model and the uniform *provider.Error.
package provider

import (
	"context"
	"iter"

	"chatbridge/internal/model"
)

// Provider is one model backend. Implementations must be safe for concurrent
// use; the registry hands the same instance to every request.
type Provider interface {
	// Name returns the registry key, used as the routing prefix in
	// "name/model" model ids and as the owned_by field of model listings.
	Name() string

	// NormalizeModel maps a client-supplied model id to the id the backend
	// will actually be called with. It resolves aliases and silently corrects
	// ids the backend would reject; it never fails.
	NormalizeModel(requested string) string

	// Chat performs one buffered completion.
	Chat(ctx context.Context, req *model.ChatRequest, apiKey string) (*model.ChatResponse, error)

	// ChatStream performs one streaming completion. The returned sequence
	// yields neutral chunks until the turn completes or an error occurs;
	// a non-nil error ends the sequence. Errors before the first byte of the
	// upstream stream are returned directly instead.
	ChatStream(ctx context.Context, req *model.ChatRequest, apiKey string) (iter.Seq2[*model.StreamChunk, error], error)

	// ListModels returns the backend's advertised models.
	ListModels() []model.ModelInfo
}
