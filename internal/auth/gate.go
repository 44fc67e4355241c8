package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/Sabina940/atlas/internal/rbac"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// AdminIdentity is derived per request and never cached.
type AdminIdentity struct {
	Email string
	Role  rbac.Role
	Token string
}

type Gate struct {
	verifier Verifier
	policy   *rbac.Policy
}

func NewGate(verifier Verifier, policy *rbac.Policy) *Gate {
	return &Gate{verifier: verifier, policy: policy}
}

// Authorize resolves the bearer token and checks the verified email against the policy.
// Provider outages are returned as ErrProviderUnavailable so callers can tell them apart.
func (g *Gate) Authorize(ctx context.Context, authorization string, action rbac.Action) (AdminIdentity, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		return AdminIdentity{}, ErrUnauthenticated
	}
	if g == nil || g.verifier == nil {
		return AdminIdentity{}, ErrUnauthenticated
	}

	identity, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return AdminIdentity{}, err
		}
		return AdminIdentity{}, ErrUnauthenticated
	}

	role, known := g.policy.Role(identity.Email)
	if !known || !rbac.Can(role, action) {
		return AdminIdentity{}, ErrForbidden
	}
	return AdminIdentity{
		Email: strings.ToLower(strings.TrimSpace(identity.Email)),
		Role:  role,
		Token: token,
	}, nil
}

func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
