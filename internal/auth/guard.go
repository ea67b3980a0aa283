// Package auth centralizes the authorization rules: one guard consulted by
// every workflow operation instead of per-handler checks.
package auth

import (
	"github.com/credvend/credvend-server/internal/model"
)

// Guard answers authorization questions against an immutable admin set
// supplied at process start. Checks are pure and evaluated fresh on every
// call; there is no session state.
type Guard struct {
	admins map[int64]struct{}
}

// NewGuard creates a Guard from the configured admin identifiers.
func NewGuard(adminIDs []int64) *Guard {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Guard{admins: admins}
}

// IsAdmin reports whether userID belongs to the admin set.
func (g *Guard) IsAdmin(userID int64) bool {
	_, ok := g.admins[userID]
	return ok
}

// CanViewCode reports whether userID may read the product's rotating code:
// buyers and admins only.
func (g *Guard) CanViewCode(userID int64, product model.Product) bool {
	return product.HasBuyer(userID) || g.IsAdmin(userID)
}

// RequireAdmin returns model.ErrUnauthorized when userID is not an admin.
func (g *Guard) RequireAdmin(userID int64) error {
	if !g.IsAdmin(userID) {
		return model.ErrUnauthorized
	}
	return nil
}
