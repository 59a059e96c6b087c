// Package reference allocates unique opaque tokens such as transaction references.
//
// Candidates come from a Generator and are claimed against a store that enforces
// uniqueness, usually a database unique constraint. A lost claim is retried with a
// fresh candidate, so correctness never depends on the randomness of the generator.
package reference

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
)

// TokenBytes is the entropy of a generated transaction reference.
const TokenBytes = 16

const defaultMaxAttempts = 5

type Generator func() (string, error)

// ClaimFunc tries to persist candidate. It returns false, nil when the candidate is
// already taken.
type ClaimFunc func(ctx context.Context, candidate string) (bool, error)

type Allocator struct {
	generate    Generator
	maxAttempts int
}

func NewAllocator(generate Generator, maxAttempts int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Allocator{generate: generate, maxAttempts: maxAttempts}
}

// NewTokenAllocator returns an allocator producing URL-safe random tokens.
func NewTokenAllocator() *Allocator {
	return NewAllocator(Token, defaultMaxAttempts)
}

func (a *Allocator) Allocate(ctx context.Context, claim ClaimFunc) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("Allocate: %w", err)
		}

		candidate, err := a.generate()
		if err != nil {
			return "", fmt.Errorf("Allocate: generate: %w", err)
		}

		ok, err := claim(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("Allocate: claim: %w", err)
		}
		if ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("Allocate: %d attempts: %w", a.maxAttempts, domain.ErrReferenceExhausted)
}

// Token returns TokenBytes of crypto/rand entropy encoded as unpadded URL-safe base64.
func Token() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("Token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
