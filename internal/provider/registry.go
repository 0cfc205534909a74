package provider

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds the configured providers. It is populated once at startup
// and read-only afterwards, so lookups need no locking.
type Registry struct {
	providers   map[string]Provider
	defaultName string
}

// NewRegistry creates a registry whose unprefixed requests route to the named
// default provider.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultName: defaultName,
	}
}

// Register adds a provider under its own name. Registering the same name
// twice replaces the earlier instance.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// List returns all registered providers in name order.
func (r *Registry) List() []Provider {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Provider, 0, len(names))
	for _, name := range names {
		out = append(out, r.providers[name])
	}
	return out
}

// Route resolves a client-supplied model id to a provider and the model id to
// forward. A "name/model" id routes to the named provider with the prefix
// stripped; an unprefixed id routes to the default provider unchanged. A
// prefix that names no registered provider is a client error, not a fallback:
// silently routing "typo/model" to the default would mask the mistake.
func (r *Registry) Route(requestedModel string) (Provider, string, error) {
	name, rest, found := strings.Cut(requestedModel, "/")
	if found && rest != "" {
		if p, ok := r.providers[name]; ok {
			return p, rest, nil
		}
		return nil, "", NewInvalidRequestError(fmt.Sprintf(
			"unknown provider %q in model %q (available: %s)",
			name, requestedModel, strings.Join(r.names(), ", "),
		))
	}

	p, ok := r.providers[r.defaultName]
	if !ok {
		return nil, "", NewServerError(fmt.Sprintf("default provider %q is not registered", r.defaultName))
	}
	return p, requestedModel, nil
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
