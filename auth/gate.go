package auth

import (
	"fmt"
	"log/slog"
)

// Anonymous is the identity of a connection that presented no token, or a
// token that did not resolve. Downstream endpoints decide whether anonymous
// access is acceptable.
const Anonymous = ""

// Gate runs once per connection attempt. It checks the connection's origin
// against the allow-list and resolves the credential token to an identity.
type Gate struct {
	tokens *TokenManager
	// allowedOrigins is the locked-down allow-list. Empty means no origin
	// check at all.
	allowedOrigins map[string]struct{}
	// permissive mirrors the development mode of the deployment: the origin
	// check is skipped entirely.
	permissive bool
	log        *slog.Logger
}

func NewGate(tokens *TokenManager, allowedOrigins []string, permissive bool, log *slog.Logger) *Gate {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return &Gate{tokens: tokens, allowedOrigins: allowed, permissive: permissive, log: log}
}

// OriginAllowed applies the allow-list policy. A missing origin header is
// always admitted; browsers send one, other clients may not.
func (g *Gate) OriginAllowed(origin string) bool {
	if g.permissive || len(g.allowedOrigins) == 0 || origin == "" {
		return true
	}
	_, ok := g.allowedOrigins[origin]
	if !ok {
		g.log.Warn(fmt.Sprintf("Rejected connection from origin %q", origin))
	}
	return ok
}

// Resolve maps a credential token to an identity. An absent, unknown, or
// expired token resolves to Anonymous rather than an error.
func (g *Gate) Resolve(token string) string {
	if token == "" {
		return Anonymous
	}
	claims, err := g.tokens.Validate(token)
	if err != nil {
		g.log.Debug("Token did not resolve, continuing as anonymous", "error", err)
		return Anonymous
	}
	return claims.Username
}
