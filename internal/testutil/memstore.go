package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/credvend/credvend-server/internal/model"
)

type pendingKey struct {
	userID    int64
	productID string
}

// MemStore is a mutex-guarded in-memory model.CatalogStore for workflow
// tests. It mirrors the durable store's semantics: each mutation is one
// exclusive read-modify-write section.
type MemStore struct {
	mu      sync.Mutex
	order   []string
	items   map[string]model.Product
	pending map[pendingKey]model.PendingPurchase
}

var _ model.CatalogStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		items:   make(map[string]model.Product),
		pending: make(map[pendingKey]model.PendingPurchase),
	}
}

func cloneProduct(p model.Product) model.Product {
	p.Buyers = append([]int64(nil), p.Buyers...)
	return p
}

func (s *MemStore) GetProduct(_ context.Context, productID string) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.items[productID]
	if !ok {
		return model.Product{}, model.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *MemStore) ListProducts(_ context.Context) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]model.Product, 0, len(s.order))
	for _, id := range s.order {
		products = append(products, cloneProduct(s.items[id]))
	}
	return products, nil
}

func (s *MemStore) UpsertProduct(_ context.Context, product model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[product.ID]
	if ok {
		product.Buyers = existing.Buyers
	} else {
		product.Buyers = nil
		s.order = append(s.order, product.ID)
	}
	s.items[product.ID] = product
	return nil
}

func (s *MemStore) AddPendingPurchase(_ context.Context, purchase model.PendingPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[purchase.ProductID]; !ok {
		return model.ErrNotFound
	}

	key := pendingKey{userID: purchase.UserID, productID: purchase.ProductID}
	if _, ok := s.pending[key]; ok {
		return model.ErrConflict
	}

	purchase.CreatedAt = time.Now()
	s.pending[key] = purchase
	return nil
}

func (s *MemStore) AttachProof(_ context.Context, userID int64, productID string, proofRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pendingKey{userID: userID, productID: productID}
	p, ok := s.pending[key]
	if !ok || p.State != model.PurchaseStateRequested {
		return model.ErrNotFound
	}

	p.State = model.PurchaseStateProofSubmitted
	p.ProofRef = proofRef
	s.pending[key] = p
	return nil
}

func (s *MemStore) ResolvePurchase(_ context.Context, userID int64, productID string, outcome model.PurchaseOutcome) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pendingKey{userID: userID, productID: productID}
	if _, ok := s.pending[key]; !ok {
		return model.Product{}, model.ErrNotFound
	}
	delete(s.pending, key)

	product, ok := s.items[productID]
	if !ok {
		return model.Product{}, model.ErrNotFound
	}

	if outcome == model.PurchaseApproved && !product.HasBuyer(userID) {
		product.Buyers = append(product.Buyers, userID)
		s.items[productID] = product
	}

	return cloneProduct(product), nil
}

func (s *MemStore) ListPendingPurchases(_ context.Context) ([]model.PendingPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchases := make([]model.PendingPurchase, 0, len(s.pending))
	for _, p := range s.pending {
		purchases = append(purchases, p)
	}
	sort.Slice(purchases, func(i, j int) bool {
		return purchases[i].CreatedAt.Before(purchases[j].CreatedAt)
	})
	return purchases, nil
}

func (s *MemStore) RemoveBuyer(_ context.Context, productID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.items[productID]
	if !ok {
		return model.ErrNotFound
	}

	for i, id := range product.Buyers {
		if id == userID {
			product.Buyers = append(product.Buyers[:i], product.Buyers[i+1:]...)
			s.items[productID] = product
			return nil
		}
	}
	return model.ErrNotFound
}

func (s *MemStore) ClearBuyers(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.items[productID]
	if !ok {
		return model.ErrNotFound
	}

	product.Buyers = nil
	s.items[productID] = product
	return nil
}
