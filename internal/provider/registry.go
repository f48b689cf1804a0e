// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// Registry holds the configured providers and picks one for each analyzer
// call: the default "provider/model" ref first, then the failover chain,
// skipping providers that are cooling down after a failure.
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	defaultRef string
	failover   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, autoirerr.New(autoirerr.CodeProviderNotFound, "provider not found: "+name, autoirerr.FieldProvider(name))
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the primary "provider/model" ref.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRefLocked(ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// SetFailover sets the ordered failover chain of "provider/model" refs.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		if err := r.checkRefLocked(ref); err != nil {
			return err
		}
	}
	r.failover = append([]string(nil), chain...)
	return nil
}

// Route returns the first available provider and the model to ask it for.
func (r *Registry) Route(ctx context.Context) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultRef == "" {
		return nil, "", autoirerr.New(autoirerr.CodeProviderRequestInvalid, "no default provider configured")
	}

	for _, ref := range append([]string{r.defaultRef}, r.failover...) {
		name, model := ParseRef(ref)
		p := r.providers[name]
		if p != nil && p.Available(ctx) {
			return p, model, nil
		}
	}

	return nil, "", autoirerr.New(autoirerr.CodeProviderUpstreamFailure,
		"all providers unavailable: no healthy provider found")
}

// Statuses reports every registered provider's status.
func (r *Registry) Statuses(ctx context.Context) []ProviderStatus {
	var out []ProviderStatus
	for _, name := range r.Names() {
		p, err := r.Get(name)
		if err != nil {
			continue
		}
		st, err := p.Status(ctx)
		if err != nil {
			st = ProviderStatus{Provider: name, Message: err.Error()}
		}
		out = append(out, st)
	}
	return out
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return autoirerr.Join(errs...)
}

func (r *Registry) checkRefLocked(ref string) error {
	name, model := ParseRef(ref)
	if model == "" {
		return autoirerr.Errorf(autoirerr.CodeProviderRequestInvalid,
			"model ref %q must use provider/model format", ref)
	}
	if _, ok := r.providers[name]; !ok {
		return autoirerr.New(autoirerr.CodeProviderNotFound,
			"provider not registered: "+name, autoirerr.FieldProvider(name))
	}
	return nil
}

// ParseRef splits a "provider/model" reference on the first "/".
func ParseRef(ref string) (providerName, model string) {
	name, model, found := strings.Cut(ref, "/")
	if !found {
		return ref, ""
	}
	return name, model
}
