package orders

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Actor is the identity performing an operation. It is always passed in
// explicitly by the caller.
type Actor struct {
	Kind enums.ActorKind
	ID   string
}

func SystemActor(name string) Actor {
	return Actor{Kind: enums.ActorSystem, ID: name}
}

func AdminActor(id uuid.UUID) Actor {
	return Actor{Kind: enums.ActorAdmin, ID: id.String()}
}

func UserActor(id uuid.UUID) Actor {
	return Actor{Kind: enums.ActorUser, ID: id.String()}
}

// String renders "kind:id", the form stored in history rows.
func (a Actor) String() string {
	return string(a.Kind) + ":" + a.ID
}

// UserID parses the id of a user actor.
func (a Actor) UserID() (uuid.UUID, bool) {
	if a.Kind != enums.ActorUser {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(a.ID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (a Actor) Validate() error {
	if !a.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor kind missing")
	}
	if strings.TrimSpace(a.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if a.Kind == enums.ActorUser {
		if _, ok := a.UserID(); !ok {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user identity")
		}
	}
	return nil
}

func (a Actor) ref() *outbox.ActorRef {
	return &outbox.ActorRef{Kind: a.Kind, ID: a.ID}
}
