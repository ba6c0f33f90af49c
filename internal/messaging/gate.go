package messaging

import (
	"context"

	"github.com/npezzotti/go-alumnichat/internal/types"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsPrivileged() bool {
	return a.Role == types.RoleAdmin
}

type RelationshipOracle interface {
	HasAcceptedConnection(ctx context.Context, a, b string) (bool, error)
}

// Gate decides whether an actor may message a counterpart. The answer is
// never cached: every call consults the oracle.
type Gate struct {
	oracle RelationshipOracle
}

func NewGate(oracle RelationshipOracle) *Gate {
	return &Gate{oracle: oracle}
}

// Allowed returns false, nil when the users are not connected. An error is
// only returned when the oracle itself fails.
func (g *Gate) Allowed(ctx context.Context, actor Actor, counterpart string) (bool, error) {
	if actor.IsPrivileged() {
		return true, nil
	}

	return g.oracle.HasAcceptedConnection(ctx, actor.ID, counterpart)
}
