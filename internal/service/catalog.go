package service

import (
	"context"
	"fmt"

	"github.com/credvend/credvend-server/internal/auth"
	"github.com/credvend/credvend-server/internal/logger"
	"github.com/credvend/credvend-server/internal/model"
)

// Catalog covers product management and buyer administration. Every mutating
// operation requires the caller to be an admin.
type Catalog struct {
	store  model.CatalogStore
	guard  *auth.Guard
	logger *logger.Logger
}

func NewCatalog(
	store model.CatalogStore,
	guard *auth.Guard,
	logger *logger.Logger,
) *Catalog {
	return &Catalog{
		store:  store,
		guard:  guard,
		logger: logger,
	}
}

// AddProduct creates or replaces a catalog entry. The buyer set is not
// touched: entitlements survive a product re-add.
func (s *Catalog) AddProduct(ctx context.Context, adminID int64, product model.Product) error {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return err
	}

	product.Buyers = nil

	if err := s.store.UpsertProduct(ctx, product); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	s.logger.Info("Catalog service: product added",
		"admin_id", adminID,
		"product_id", product.ID)

	return nil
}

// EditProduct updates only the fields named in the patch, leaving the rest
// untouched.
func (s *Catalog) EditProduct(ctx context.Context, adminID int64, productID string, patch model.ProductPatch) error {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return err
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to get product: %w", err)
	}

	if patch.DisplayName != nil {
		product.DisplayName = *patch.DisplayName
	}
	if patch.Price != nil {
		product.Price = *patch.Price
	}
	if patch.Username != nil {
		product.Credentials.Username = *patch.Username
	}
	if patch.Password != nil {
		product.Credentials.Password = *patch.Password
	}
	if patch.Secret != nil {
		product.Secret = *patch.Secret
	}

	if err := s.store.UpsertProduct(ctx, product); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	s.logger.Info("Catalog service: product updated",
		"admin_id", adminID,
		"product_id", productID)

	return nil
}

// ListProducts returns the catalog in insertion order. Open to any caller;
// secrets and credentials stay server-side because the transport renders
// only presentation fields.
func (s *Catalog) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return products, nil
}

func (s *Catalog) ListBuyers(ctx context.Context, adminID int64, productID string) ([]int64, error) {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return nil, err
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product.Buyers, nil
}

// RemoveBuyer revokes a single user's entitlement. Removing a non-member is
// model.ErrNotFound, not a silent success.
func (s *Catalog) RemoveBuyer(ctx context.Context, adminID int64, productID string, userID int64) error {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return err
	}

	if err := s.store.RemoveBuyer(ctx, productID, userID); err != nil {
		return fmt.Errorf("failed to remove buyer: %w", err)
	}

	s.logger.Info("Catalog service: buyer removed",
		"admin_id", adminID,
		"user_id", userID,
		"product_id", productID)

	return nil
}

// ClearBuyers revokes every entitlement on the product.
func (s *Catalog) ClearBuyers(ctx context.Context, adminID int64, productID string) error {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return err
	}

	if err := s.store.ClearBuyers(ctx, productID); err != nil {
		return fmt.Errorf("failed to clear buyers: %w", err)
	}

	s.logger.Info("Catalog service: buyers cleared",
		"admin_id", adminID,
		"product_id", productID)

	return nil
}

// ResendCredentials re-issues the credential notify-instructions for the
// product's buyers, or for a single buyer when userID is non-nil. Returns
// model.ErrNotFound when the target is not a buyer or there is nobody to
// notify.
func (s *Catalog) ResendCredentials(ctx context.Context, adminID int64, productID string, userID *int64) ([]model.Approval, error) {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return nil, err
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	targets := product.Buyers
	if userID != nil {
		if !product.HasBuyer(*userID) {
			return nil, model.ErrNotFound
		}
		targets = []int64{*userID}
	}
	if len(targets) == 0 {
		return nil, model.ErrNotFound
	}

	notifications := make([]model.Approval, 0, len(targets))
	for _, target := range targets {
		notifications = append(notifications, model.Approval{
			UserID:      target,
			ProductID:   productID,
			Credentials: product.Credentials,
		})
	}

	s.logger.Info("Catalog service: credentials resent",
		"admin_id", adminID,
		"product_id", productID,
		"recipients", len(notifications))

	return notifications, nil
}

// ProductStats summarizes a product for the admin.
func (s *Catalog) ProductStats(ctx context.Context, adminID int64, productID string) (model.ProductStats, error) {
	if err := s.guard.RequireAdmin(adminID); err != nil {
		return model.ProductStats{}, err
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return model.ProductStats{}, fmt.Errorf("failed to get product: %w", err)
	}

	return model.ProductStats{
		ProductID:  product.ID,
		Price:      product.Price,
		BuyerCount: len(product.Buyers),
	}, nil
}
