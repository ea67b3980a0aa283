package telegram

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/credvend/credvend-server/internal/model"
)

func TestRenderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "unauthorized", err: model.ErrUnauthorized, want: "You are not allowed to do that."},
		{name: "conflict", err: model.ErrConflict, want: "Already processed."},
		{name: "not found", err: model.ErrNotFound, want: "Not found."},
		{name: "missing secret", err: model.ErrMissingSecret, want: "No authenticator secret set for this product."},
		{name: "invalid secret", err: model.ErrInvalidSecret, want: "The authenticator secret for this product is invalid."},
		{name: "wrapped", err: fmt.Errorf("failed to get product: %w", model.ErrNotFound), want: "Not found."},
		{name: "storage detail hidden", err: fmt.Errorf("query products: %w: %w", model.ErrStorage, errors.New("dial tcp: refused")), want: "Something went wrong, please try again later."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderError(tt.err))
		})
	}
}

func TestRenderProduct_HidesSensitiveFields(t *testing.T) {
	product := model.Product{
		ID:          "p1",
		DisplayName: "Streaming account",
		Price:       "10 USD",
		Credentials: model.Credentials{Username: "acc", Password: "hunter2"},
		Secret:      "JBSWY3DPEHPK3PXP",
	}

	text := renderProduct(product)
	assert.Contains(t, text, "p1")
	assert.Contains(t, text, "10 USD")
	assert.NotContains(t, text, "hunter2")
	assert.NotContains(t, text, "JBSWY3DPEHPK3PXP")
}

func TestRenderBuyers(t *testing.T) {
	assert.Equal(t, "No buyers", renderBuyers(nil))
	assert.Equal(t, "Buyers: 10, 20", renderBuyers([]int64{10, 20}))
}

func TestRenderPending(t *testing.T) {
	assert.Equal(t, "No pending purchases", renderPending(nil))

	got := renderPending([]model.PendingPurchase{
		{UserID: 42, ProductID: "p1", State: model.PurchaseStateProofSubmitted},
	})
	assert.Equal(t, "Pending purchases:\n42 p1 (proof_submitted)", got)
}
