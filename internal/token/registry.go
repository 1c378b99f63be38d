package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry maps asset identifiers to their tokens.
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]Token
}

// NewRegistry creates a registry holding the given tokens.
func NewRegistry(tokens ...Token) *Registry {
	r := &Registry{tokens: make(map[common.Address]Token, len(tokens))}
	for _, t := range tokens {
		r.tokens[t.ID()] = t
	}
	return r
}

// Register adds or replaces a token.
func (r *Registry) Register(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.ID()] = t
}

// Get returns the token for id.
func (r *Registry) Get(id common.Address) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, id.Hex())
	}
	return t, nil
}

// BySymbol returns the first token with the given symbol.
func (r *Registry) BySymbol(symbol string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tokens {
		if t.Symbol() == symbol {
			return t, true
		}
	}
	return nil, false
}
