package proxy

import (
	"net/http"
	"time"

	"chatbridge/internal/openaiwire"
	"chatbridge/internal/provider"
)

// ModelsHandler serves GET /v1/models by aggregating the advertised models of
// every registered provider. IDs are prefixed with the provider name so
// clients can route requests back through the same provider explicitly.
type ModelsHandler struct {
	Registry *provider.Registry
}

var _ http.Handler = (*ModelsHandler)(nil)

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	created := time.Now().Unix()

	list := openaiwire.ModelList{Object: "list"}
	for _, p := range h.Registry.List() {
		for _, m := range p.ListModels() {
			list.Data = append(list.Data, openaiwire.ModelItem{
				ID:      p.Name() + "/" + m.ID,
				Object:  "model",
				Created: created,
				OwnedBy: m.OwnedBy,
			})
		}
	}

	writeJSON(r.Context(), w, list, http.StatusOK)
}
