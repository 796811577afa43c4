// Package auth is the authenticators registry: a mapping from scheme name to
// a pure credential verifier. No scheme is built in; the daemon registers
// real schemes at startup.
//
// The registry follows the same single-purpose, name-keyed store shape used
// elsewhere in this codebase for pluggable capabilities: one small
// interface value per scheme, looked up by name, with no built-in cases.
package auth

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Verifier checks a scheme-specific credential payload and returns the
// authenticated principal, or an error if the credentials are rejected.
// Verifiers are pure with respect to session state: the session manager
// records the returned principal only on success.
type Verifier func(credentials json.RawMessage) (principal string, err error)

// Registry maps scheme name to Verifier.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Register binds scheme to v. Registering the same scheme twice replaces the
// previous verifier.
func (r *Registry) Register(scheme string, v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[scheme] = v
}

// Verify looks up scheme and runs its verifier against credentials. An
// unknown scheme is itself a verification failure.
func (r *Registry) Verify(scheme string, credentials json.RawMessage) (string, error) {
	r.mu.RLock()
	v, ok := r.verifiers[scheme]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown authentication scheme %q", scheme)
	}
	return v(credentials)
}

// Schemes returns the registered scheme names, for diagnostics.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		out = append(out, name)
	}
	return out
}
