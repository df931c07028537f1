package authorization

import (
	"context"
	"errors"
)

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)

// Service answers whether an actor may perform an action inside an
// organization. Actors are "user:<id>" or "system".
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}

// UserActor formats a user id as an actor.
func UserActor(userID string) string {
	return "user:" + userID
}
