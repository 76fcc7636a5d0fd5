// Package authz carries the acting staff member through a request. Identity
// itself is resolved by whatever sits in front of the service; this package
// only reads the result.
package authz

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// Actor is the staff member behind a request.
type Actor struct {
	Role string
	Name string
}

type actorContextKey struct{}

func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext retrieves the Actor stored in ctx.
// It returns nil if ctx is nil, if no actor is stored, or if the stored value has a different type.
func ActorFromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	actor, ok := ctx.Value(actorContextKey{}).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// ActorResolver turns a request into an Actor. A nil actor with a nil error
// means the request is anonymous.
type ActorResolver interface {
	Resolve(r *http.Request) (*Actor, error)
}

// HeaderResolver trusts identity headers set by an upstream proxy.
type HeaderResolver struct {
	RoleHeader string
	NameHeader string
}

const (
	DefaultRoleHeader = "X-Staff-Role"
	DefaultNameHeader = "X-Staff-Name"
)

func (h HeaderResolver) Resolve(r *http.Request) (*Actor, error) {
	roleHeader := h.RoleHeader
	if roleHeader == "" {
		roleHeader = DefaultRoleHeader
	}
	nameHeader := h.NameHeader
	if nameHeader == "" {
		nameHeader = DefaultNameHeader
	}

	role := strings.ToLower(strings.TrimSpace(r.Header.Get(roleHeader)))
	if role == "" {
		return nil, nil
	}
	if !IsKnownRole(role) {
		return nil, ErrForbidden
	}
	return &Actor{Role: role, Name: strings.TrimSpace(r.Header.Get(nameHeader))}, nil
}

func IsKnownRole(role string) bool {
	return role == RoleAdmin || role == RoleManager || role == RoleEmployee
}

// RequireRole checks that the actor in ctx holds one of roles. With no roles
// any authenticated actor passes.
func RequireRole(ctx context.Context, roles ...string) error {
	actor := ActorFromContext(ctx)
	if actor == nil {
		return ErrUnauthenticated
	}
	if len(roles) == 0 || slices.Contains(roles, actor.Role) {
		return nil
	}
	return ErrForbidden
}
