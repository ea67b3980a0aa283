package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/credvend/credvend-server/internal/auth"
	"github.com/credvend/credvend-server/internal/logger"
	"github.com/credvend/credvend-server/internal/model"
	"github.com/credvend/credvend-server/internal/totp"
)

// Purchase orchestrates the purchase lifecycle: request, proof submission,
// admin resolution and code disclosure. All authorization goes through the
// guard; all state through the store.
type Purchase struct {
	store  model.CatalogStore
	guard  *auth.Guard
	clock  model.Clock
	logger *logger.Logger
}

func NewPurchase(
	store model.CatalogStore,
	guard *auth.Guard,
	clock model.Clock,
	logger *logger.Logger,
) *Purchase {
	return &Purchase{
		store:  store,
		guard:  guard,
		clock:  clock,
		logger: logger,
	}
}

// RequestPurchase starts a new purchase cycle for the pair. Returns
// model.ErrNotFound for an unknown product and model.ErrConflict when an
// unresolved purchase already exists.
func (s *Purchase) RequestPurchase(ctx context.Context, userID int64, productID string) error {
	err := s.store.AddPendingPurchase(ctx, model.PendingPurchase{
		UserID:    userID,
		ProductID: productID,
		State:     model.PurchaseStateRequested,
	})
	if err != nil {
		return fmt.Errorf("failed to add pending purchase: %w", err)
	}

	s.logger.Info("Purchase service: purchase requested",
		"user_id", userID,
		"product_id", productID)

	return nil
}

// SubmitProof attaches payment evidence to a Requested purchase. Returns
// model.ErrNotFound when no Requested entry exists for the pair, which also
// blocks a second submission.
func (s *Purchase) SubmitProof(ctx context.Context, userID int64, productID string, proofRef string) error {
	if err := s.store.AttachProof(ctx, userID, productID, proofRef); err != nil {
		return fmt.Errorf("failed to attach proof: %w", err)
	}

	s.logger.Info("Purchase service: proof submitted",
		"user_id", userID,
		"product_id", productID,
		"proof_ref", proofRef)

	return nil
}

// Approve resolves the pending purchase as approved, granting the user buyer
// access, and returns the notify-instruction with the product's credentials.
// The caller discloses them exactly once, strictly after this call returns.
// Approving a Requested purchase with no proof is allowed as an admin
// override. A pair that was already approved yields model.ErrConflict, never
// a second buyer entry.
func (s *Purchase) Approve(ctx context.Context, adminID, userID int64, productID string) (model.Approval, error) {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return model.Approval{}, err
	}

	product, err := s.store.ResolvePurchase(ctx, userID, productID, model.PurchaseApproved)
	if errors.Is(err, model.ErrNotFound) {
		return model.Approval{}, s.classifyMissingPending(ctx, userID, productID)
	}
	if err != nil {
		return model.Approval{}, fmt.Errorf("failed to resolve purchase: %w", err)
	}

	s.logger.Info("Purchase service: purchase approved",
		"admin_id", adminID,
		"user_id", userID,
		"product_id", productID)

	return model.Approval{
		UserID:      userID,
		ProductID:   productID,
		Credentials: product.Credentials,
	}, nil
}

// Reject resolves the pending purchase as rejected. Nothing is disclosed.
func (s *Purchase) Reject(ctx context.Context, adminID, userID int64, productID string) error {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return err
	}

	_, err := s.store.ResolvePurchase(ctx, userID, productID, model.PurchaseRejected)
	if err != nil {
		return fmt.Errorf("failed to resolve purchase: %w", err)
	}

	s.logger.Info("Purchase service: purchase rejected",
		"admin_id", adminID,
		"user_id", userID,
		"product_id", productID)

	return nil
}

// classifyMissingPending distinguishes a double approval from a purchase
// that was never requested: resolving an already-approved pair must surface
// as a conflict, not as silent double credit.
func (s *Purchase) classifyMissingPending(ctx context.Context, userID int64, productID string) error {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to get product: %w", err)
	}
	if product.HasBuyer(userID) {
		return model.ErrConflict
	}
	return model.ErrNotFound
}

// GetCode derives the product's current rotating code for an entitled
// caller. The code is returned, never stored or logged.
func (s *Purchase) GetCode(ctx context.Context, userID int64, productID string) (string, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("failed to get product: %w", err)
	}

	if !s.guard.CanViewCode(userID, product) {
		return "", model.ErrUnauthorized
	}

	if product.Secret == "" {
		return "", model.ErrMissingSecret
	}

	code, err := totp.Code(product.Secret, s.clock.Now())
	if err != nil {
		return "", fmt.Errorf("failed to derive code: %w", err)
	}

	return code, nil
}

// ListPendingPurchases returns the outstanding queue for the admin.
func (s *Purchase) ListPendingPurchases(ctx context.Context, adminID int64) ([]model.PendingPurchase, error) {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return nil, err
	}

	purchases, err := s.store.ListPendingPurchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending purchases: %w", err)
	}

	return purchases, nil
}
