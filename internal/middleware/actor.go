package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mtlprog/docflow/internal/domain"
	"github.com/mtlprog/docflow/internal/handler/dto"
)

type contextKey string

const (
	// ContextKeyActor is the key for storing the actor in request context.
	ContextKeyActor contextKey = "actor"
)

// Actor identity headers.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorName = "X-Actor-Name"
	HeaderActorRole = "X-Actor-Role"
)

// ActorMiddleware reads the operator identity from request headers.
// Authentication is left to the surrounding deployment.
type ActorMiddleware struct{}

// NewActorMiddleware creates a new ActorMiddleware.
func NewActorMiddleware() *ActorMiddleware {
	return &ActorMiddleware{}
}

// Identify validates the identity headers and adds the actor to request context.
func (m *ActorMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := domain.Actor{
			ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
			Name: strings.TrimSpace(r.Header.Get(HeaderActorName)),
			Role: domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
		}

		if actor.ID == "" || actor.Name == "" {
			dto.WriteError(w, http.StatusUnauthorized, "ACTOR_REQUIRED", "actor id and name headers are required")
			return
		}
		if !actor.Role.IsOperator() {
			dto.WriteError(w, http.StatusUnauthorized, "INVALID_ROLE", "actor role must be preparer, reviewer, validator or approver")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyActor, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActorFromContext retrieves the identified actor from request context.
func GetActorFromContext(ctx context.Context) (domain.Actor, error) {
	actor, ok := ctx.Value(ContextKeyActor).(domain.Actor)
	if !ok {
		return domain.Actor{}, domain.ErrInvalidRole
	}
	return actor, nil
}
