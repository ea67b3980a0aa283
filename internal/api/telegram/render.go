package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/credvend/credvend-server/internal/model"
)

// renderError maps each error kind to its fixed user-facing message.
// Internal detail never leaves the process.
func renderError(err error) string {
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		return "You are not allowed to do that."
	case errors.Is(err, model.ErrConflict):
		return "Already processed."
	case errors.Is(err, model.ErrNotFound):
		return "Not found."
	case errors.Is(err, model.ErrMissingSecret):
		return "No authenticator secret set for this product."
	case errors.Is(err, model.ErrInvalidSecret):
		return "The authenticator secret for this product is invalid."
	default:
		return "Something went wrong, please try again later."
	}
}

// renderProduct shows presentation fields only: credentials and the secret
// never appear in a listing.
func renderProduct(product model.Product) string {
	return fmt.Sprintf("%s: %s\n%s", product.ID, product.Price, product.DisplayName)
}

func renderBuyers(buyers []int64) string {
	if len(buyers) == 0 {
		return "No buyers"
	}
	parts := make([]string, 0, len(buyers))
	for _, id := range buyers {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return "Buyers: " + strings.Join(parts, ", ")
}

func renderPending(purchases []model.PendingPurchase) string {
	if len(purchases) == 0 {
		return "No pending purchases"
	}
	var sb strings.Builder
	sb.WriteString("Pending purchases:\n")
	for _, p := range purchases {
		fmt.Fprintf(&sb, "%d %s (%s)\n", p.UserID, p.ProductID, p.State)
	}
	return strings.TrimRight(sb.String(), "\n")
}
