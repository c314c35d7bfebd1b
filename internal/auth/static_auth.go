package auth

import (
	"context"
)

// StaticAuthenticator is a development-only authenticator that accepts any
// well-formed vxk_ key without a database.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (*ClientContext, error) {
	if len(token) < 12 {
		return nil, ErrInvalidAPIKey
	}
	return &ClientContext{
		ClientID: "static-" + token[:12],
		Name:     "development",
	}, nil
}
