package model

import "context"

// Product is a sellable item: presentation fields, the credentials disclosed
// on approval and the shared TOTP seed used to derive rotating codes.
type Product struct {
	ID          string
	DisplayName string
	Price       string
	Credentials Credentials
	Secret      string
	Buyers      []int64
}

// Credentials is the username/password pair disclosed to approved buyers.
type Credentials struct {
	Username string
	Password string
}

// HasBuyer reports whether userID is entitled to the product.
func (p Product) HasBuyer(userID int64) bool {
	for _, id := range p.Buyers {
		if id == userID {
			return true
		}
	}
	return false
}

// ProductPatch carries the fields an edit may change. Nil fields are left
// untouched; buyers are never editable through a patch.
type ProductPatch struct {
	DisplayName *string
	Price       *string
	Username    *string
	Password    *string
	Secret      *string
}

// ProductStats summarizes a product for the admin.
type ProductStats struct {
	ProductID  string
	Price      string
	BuyerCount int
}

// CatalogStore defines persistence operations for products, buyers and
// pending purchases. Implementations must apply every mutation atomically:
// a failed call leaves the previous state intact.
type CatalogStore interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	UpsertProduct(ctx context.Context, product Product) error

	AddPendingPurchase(ctx context.Context, purchase PendingPurchase) error
	AttachProof(ctx context.Context, userID int64, productID string, proofRef string) error
	ResolvePurchase(ctx context.Context, userID int64, productID string, outcome PurchaseOutcome) (Product, error)
	ListPendingPurchases(ctx context.Context) ([]PendingPurchase, error)

	RemoveBuyer(ctx context.Context, productID string, userID int64) error
	ClearBuyers(ctx context.Context, productID string) error
}
