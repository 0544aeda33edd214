package models

import "github.com/google/uuid"

// Principal is the authenticated caller handed to every cart and order
// operation.
type Principal struct {
	UserID  uuid.UUID
	IsStaff bool
}

// CanAccess reports whether p may read a resource owned by ownerID.
func (p Principal) CanAccess(ownerID uuid.UUID) bool {
	return p.IsStaff || p.UserID == ownerID
}
