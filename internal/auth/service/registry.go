package service

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pastvault/pastvault/internal/auth/domain"
)

// FactorStrategy is one second-factor implementation. Strategies own their
// challenge material and proof verification; the login flow never inspects
// method-specific payloads.
type FactorStrategy interface {
	// Method returns the identifier users carry in mfa_method.
	Method() string

	// Challenge prepares method-specific challenge material for the user.
	// Methods without server-side challenge state return nil options.
	Challenge(ctx context.Context, user domain.User) (json.RawMessage, error)

	// Verify checks the submitted proof. Proof is either a short code or a
	// raw assertion, depending on the method.
	Verify(ctx context.Context, user domain.User, code string, assertion json.RawMessage) error
}

// Registry maps method identifiers to strategies. New factor types plug in
// via Register without touching the login flow.
type Registry struct {
	strategies map[string]FactorStrategy
}

func NewRegistry(strategies ...FactorStrategy) *Registry {
	r := &Registry{strategies: make(map[string]FactorStrategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s FactorStrategy) {
	r.strategies[s.Method()] = s
}

// Get returns the strategy for a method, or ErrUnsupportedMFAMethod.
func (r *Registry) Get(method string) (FactorStrategy, error) {
	s, ok := r.strategies[method]
	if !ok {
		return nil, ErrUnsupportedMFAMethod
	}
	return s, nil
}

// ForUser returns the strategy matching the user's active factor.
func (r *Registry) ForUser(user domain.User) (FactorStrategy, error) {
	if !user.MFAEnabled || user.MFAMethod == nil {
		return nil, ErrMFANotConfigured
	}
	return r.Get(*user.MFAMethod)
}

// Methods lists the registered method identifiers, sorted for stable output.
func (r *Registry) Methods() []string {
	methods := make([]string, 0, len(r.strategies))
	for m := range r.strategies {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}
