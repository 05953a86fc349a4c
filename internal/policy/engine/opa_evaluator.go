package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	"esign-workflow/internal/identity"
)

const allowedMethodsQuery = "data.esign.signing.allowed_identity_methods"

// DefaultPolicy restricts companies and paper signing to manual verification.
const DefaultPolicy = `package esign.signing

allowed_identity_methods contains m if {
	some m in input.configured_methods
	not blocked(m)
}

# companies are identified by registration details only
blocked(m) if {
	input.signer_kind == "company"
	m != "manual"
}

# on paper the agent checks the identity document in person
blocked(m) if {
	input.signing_method == "physical_upload"
	m != "manual"
}
`

// OPAEvaluator evaluates the signing policy with OPA Rego. The query is prepared once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy; an empty policy means DefaultPolicy.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	q, err := rego.New(
		rego.Query(allowedMethodsQuery),
		rego.Module("signing.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile signing policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// NewOPAEvaluatorFromFile loads the policy from path, or DefaultPolicy when path is empty.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// HealthCheck evaluates the prepared query against a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.AllowedIdentityMethods(ctx, Input{SignerKind: "person", SigningMethod: "self_service",
		Configured: []identity.Method{identity.MethodManual}})
	return err
}

// AllowedIdentityMethods returns the configured methods the policy allows, in configured order.
func (e *OPAEvaluator) AllowedIdentityMethods(ctx context.Context, in Input) ([]identity.Method, error) {
	configured := make([]string, 0, len(in.Configured))
	for _, m := range in.Configured {
		configured = append(configured, string(m))
	}
	input := map[string]interface{}{
		"type_code":          in.TypeCode,
		"signing_method":     in.SigningMethod,
		"signer_kind":        in.SignerKind,
		"configured_methods": configured,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("eval signing policy: %w", err)
	}
	allowed := make(map[string]bool)
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		values, ok := rs[0].Expressions[0].Value.([]interface{})
		if !ok {
			log.Printf("policy: unexpected result type %T for %s", rs[0].Expressions[0].Value, allowedMethodsQuery)
			return nil, fmt.Errorf("signing policy returned %T", rs[0].Expressions[0].Value)
		}
		for _, v := range values {
			if s, ok := v.(string); ok {
				allowed[s] = true
			}
		}
	}
	var out []identity.Method
	for _, m := range in.Configured {
		if allowed[string(m)] {
			out = append(out, m)
		}
	}
	return out, nil
}

// StaticEvaluator allows every configured method. Used when policy evaluation is disabled.
type StaticEvaluator struct{}

func (StaticEvaluator) AllowedIdentityMethods(ctx context.Context, in Input) ([]identity.Method, error) {
	return append([]identity.Method(nil), in.Configured...), nil
}
