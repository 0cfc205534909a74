package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatbridge/internal/metrics"
	"chatbridge/internal/model"
	"chatbridge/internal/openaiwire"
	"chatbridge/internal/provider"
	"chatbridge/internal/thinking"
	"chatbridge/internal/translate"
)

// ChatCompletionsHandler handles OpenAI-compatible chat completion requests,
// routing each to a registered provider and translating in both directions.
type ChatCompletionsHandler struct {
	Registry  *provider.Registry
	Cache     *thinking.Cache
	Metrics   *metrics.Metrics
	Translate translate.Options

	// FallbackAPIKey is used when the request carries no bearer token.
	FallbackAPIKey string
}

// Compile-time check to ensure ChatCompletionsHandler implements http.Handler
var _ http.Handler = (*ChatCompletionsHandler)(nil)

// ServeHTTP implements http.Handler for streaming and non-streaming requests.
func (h *ChatCompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req openaiwire.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSONError(ctx, w, provider.NewInvalidRequestError(
				http.StatusText(http.StatusRequestEntityTooLarge)))
			return
		}
		slog.ErrorContext(ctx, "failed to decode request", "error", err)
		writeJSONError(ctx, w, provider.NewInvalidRequestError("malformed request body"))
		return
	}

	apiKey := bearerToken(r)
	if apiKey == "" {
		apiKey = h.FallbackAPIKey
	}
	if apiKey == "" {
		writeJSONError(ctx, w, provider.NewAuthenticationError("missing bearer token"))
		return
	}

	prov, modelID, err := h.Registry.Route(req.Model)
	if err != nil {
		slog.WarnContext(ctx, "model routing failed", "model", req.Model, "error", err)
		writeJSONError(ctx, w, err)
		return
	}
	resolved := prov.NormalizeModel(modelID)

	neutral, err := translate.Request(ctx, &req, resolved, h.Cache, h.Translate)
	if err != nil {
		slog.WarnContext(ctx, "request translation failed", "error", err)
		status := writeJSONError(ctx, w, err)
		h.observe(prov, req.Stream, status, start)
		return
	}

	if req.Stream {
		h.streamResponse(ctx, w, prov, neutral, apiKey, start)
	} else {
		h.writeResponse(ctx, w, prov, neutral, apiKey, start)
	}
}

// writeResponse handles non-streaming chat completion requests.
func (h *ChatCompletionsHandler) writeResponse(
	ctx context.Context,
	w http.ResponseWriter,
	prov provider.Provider,
	req *model.ChatRequest,
	apiKey string,
	start time.Time,
) {
	if ctx.Err() != nil {
		return
	}

	resp, err := prov.Chat(ctx, req, apiKey)
	if err != nil {
		slog.ErrorContext(ctx, "request failed", "provider", prov.Name(), "error", err)
		status := writeJSONError(ctx, w, err)
		h.observe(prov, false, status, start)
		return
	}

	// Tool-call turns carry the thinking blocks forward so follow-up requests
	// can replay them.
	if h.Cache != nil && len(resp.ToolCalls) > 0 && len(resp.ThinkingBlocks) > 0 {
		ids := make([]string, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			ids = append(ids, tc.ID)
		}
		h.Cache.Put(ids, resp.ThinkingBlocks)
	}

	if h.Metrics != nil {
		h.Metrics.ObserveTokens(prov.Name(), resp.InputTokens, resp.OutputTokens)
	}
	writeJSON(ctx, w, translate.Response(resp), http.StatusOK)
	h.observe(prov, false, http.StatusOK, start)
}

// streamResponse streams chat completion chunks using SSE. Errors after the
// response has started are delivered in-band as an error event.
func (h *ChatCompletionsHandler) streamResponse(
	ctx context.Context,
	w http.ResponseWriter,
	prov provider.Provider,
	req *model.ChatRequest,
	apiKey string,
	start time.Time,
) {
	if ctx.Err() != nil {
		return
	}

	chunks, err := prov.ChatStream(ctx, req, apiKey)
	if err != nil {
		slog.ErrorContext(ctx, "streaming request failed", "provider", prov.Name(), "error", err)
		status := writeJSONError(ctx, w, err)
		h.observe(prov, true, status, start)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		status := writeJSONError(ctx, w, provider.NewServerError("streaming not supported"))
		h.observe(prov, true, status, start)
		return
	}

	if h.Metrics != nil {
		h.Metrics.StreamOpened()
		defer h.Metrics.StreamClosed()
	}

	reassembler := translate.NewReassembler(req.Model, req.IncludeUsage, h.Cache)
	for frame, err := range reassembler.Run(ctx, chunks) {
		// Check for client disconnect before processing the frame
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}

		if err != nil {
			slog.ErrorContext(ctx, "stream error", "provider", prov.Name(), "error", err)

			// OpenAI SDKs recognize the {"error": {...}} frame and stop
			// reading immediately. The stream still terminates with the
			// protocol's [DONE] marker.
			envelope, status := errorEnvelope(err)
			if writeErr := sse.WriteEvent("error"); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error event type", "error", writeErr)
				return
			}
			if writeErr := sse.WriteData(envelope); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error", "error", writeErr)
				return
			}
			if writeErr := sse.WriteRaw("[DONE]"); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write stream termination marker", "error", writeErr)
			}
			h.observe(prov, true, status, start)
			return
		}

		if h.Metrics != nil && frame.Usage != nil {
			h.Metrics.ObserveTokens(prov.Name(), frame.Usage.PromptTokens, frame.Usage.CompletionTokens)
		}
		if err := sse.WriteData(frame); err != nil {
			slog.ErrorContext(ctx, "failed to write chunk", "error", err)
			return
		}
	}

	// OpenAI streaming protocol requires the [DONE] marker
	if err := sse.WriteRaw("[DONE]"); err != nil {
		slog.ErrorContext(ctx, "failed to write stream termination marker", "error", err)
	}
	h.observe(prov, true, http.StatusOK, start)
}

func (h *ChatCompletionsHandler) observe(prov provider.Provider, stream bool, status int, start time.Time) {
	if h.Metrics != nil {
		h.Metrics.ObserveRequest(prov.Name(), stream, status, time.Since(start))
	}
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
