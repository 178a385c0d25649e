package adapter

import (
	"context"
	"fmt"
	"strings"
)

// Principal is a delegated security identity used while acquiring a
// connection.
type Principal struct {
	Domain   string
	User     string
	Password string
}

// ParsePrincipal parses "user:password" or "DOMAIN\user:password".
// The password may contain colons; the first colon splits it off.
func ParsePrincipal(s string) (Principal, error) {
	account, password, ok := strings.Cut(s, ":")
	if !ok || account == "" {
		return Principal{}, fmt.Errorf("credentials must have the form [DOMAIN\\]user:password")
	}
	p := Principal{User: account, Password: password}
	if domain, user, ok := strings.Cut(account, `\`); ok {
		if user == "" {
			return Principal{}, fmt.Errorf("credentials have an empty user name")
		}
		p.Domain, p.User = domain, user
	}
	return p, nil
}

// Account returns the login name, DOMAIN\user when a domain is set.
func (p Principal) Account() string {
	if p.Domain != "" {
		return p.Domain + `\` + p.User
	}
	return p.User
}

// String never includes the password.
func (p Principal) String() string {
	return p.Account()
}

type principalKey struct{}

// WithPrincipal returns a context that acquires connections as p.
// Use it only for the acquisition call; the identity must not outlive it.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal carried by ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
