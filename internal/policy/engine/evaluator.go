package engine

import (
	"context"

	"esign-workflow/internal/identity"
)

// Input describes the signing situation a policy decides on.
type Input struct {
	TypeCode      string
	SigningMethod string
	SignerKind    string
	// Configured are the identity methods the envelope type offers; a policy can only narrow them.
	Configured []identity.Method
}

// Evaluator decides which identity methods may be used.
type Evaluator interface {
	AllowedIdentityMethods(ctx context.Context, in Input) ([]identity.Method, error)
}
