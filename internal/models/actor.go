package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of an operation. It is one of Buyer, Solver or Admin.
type Actor interface {
	ActorID() uuid.UUID
	Role() string
	actor()
}

type Buyer struct{ ID uuid.UUID }

type Solver struct{ ID uuid.UUID }

type Admin struct{ ID uuid.UUID }

func (b Buyer) ActorID() uuid.UUID  { return b.ID }
func (s Solver) ActorID() uuid.UUID { return s.ID }
func (a Admin) ActorID() uuid.UUID  { return a.ID }

func (Buyer) Role() string  { return RoleBuyer }
func (Solver) Role() string { return RoleSolver }
func (Admin) Role() string  { return RoleAdmin }

func (Buyer) actor()  {}
func (Solver) actor() {}
func (Admin) actor()  {}

// NewActor builds the actor variant for a resolved (id, role) pair.
func NewActor(id uuid.UUID, role string) (Actor, error) {
	switch role {
	case RoleBuyer:
		return Buyer{ID: id}, nil
	case RoleSolver:
		return Solver{ID: id}, nil
	case RoleAdmin:
		return Admin{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}
