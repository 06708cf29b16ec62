package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

// Actor is the authenticated caller as seen by domain services.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// SystemActor is used by background jobs and webhooks.
var SystemActor = Actor{Role: "system"}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.MemberRoleAdmin
}

func (a Actor) IsSystem() bool {
	return a.UserID == uuid.Nil && a.Role == SystemActor.Role
}

// CanAccess reports whether the actor may act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	return a.IsAdmin() || a.IsSystem() || (a.UserID != uuid.Nil && a.UserID == ownerID)
}

// UserIDPtr returns nil for the system actor.
func (a Actor) UserIDPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// ActorFromClaims converts verified token claims.
func ActorFromClaims(c *AccessTokenClaims) Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.UserID, Role: c.Role}
}
