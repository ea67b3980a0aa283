package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/credvend/credvend-server/internal/auth"
	"github.com/credvend/credvend-server/internal/model"
	"github.com/credvend/credvend-server/internal/testutil"
	"github.com/credvend/credvend-server/internal/totp"
)

const (
	adminID = int64(1)
	buyerID = int64(42)
)

// MockCatalogStore mocks the CatalogStore interface
type MockCatalogStore struct {
	mock.Mock
}

func (m *MockCatalogStore) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(model.Product), args.Error(1)
}

func (m *MockCatalogStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockCatalogStore) UpsertProduct(ctx context.Context, product model.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockCatalogStore) AddPendingPurchase(ctx context.Context, purchase model.PendingPurchase) error {
	args := m.Called(ctx, purchase)
	return args.Error(0)
}

func (m *MockCatalogStore) AttachProof(ctx context.Context, userID int64, productID string, proofRef string) error {
	args := m.Called(ctx, userID, productID, proofRef)
	return args.Error(0)
}

func (m *MockCatalogStore) ResolvePurchase(ctx context.Context, userID int64, productID string, outcome model.PurchaseOutcome) (model.Product, error) {
	args := m.Called(ctx, userID, productID, outcome)
	return args.Get(0).(model.Product), args.Error(1)
}

func (m *MockCatalogStore) ListPendingPurchases(ctx context.Context) ([]model.PendingPurchase, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.PendingPurchase), args.Error(1)
}

func (m *MockCatalogStore) RemoveBuyer(ctx context.Context, productID string, userID int64) error {
	args := m.Called(ctx, productID, userID)
	return args.Error(0)
}

func (m *MockCatalogStore) ClearBuyers(ctx context.Context, productID string) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time {
	return c.at
}

func newPurchaseService(store model.CatalogStore, at time.Time) *Purchase {
	return NewPurchase(store, auth.NewGuard([]int64{adminID}), fixedClock{at: at}, testutil.MakeNoopLogger())
}

func TestPurchase_RequestPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("AddPendingPurchase", ctx, model.PendingPurchase{
			UserID:    buyerID,
			ProductID: "p1",
			State:     model.PurchaseStateRequested,
		}).Return(nil)

		s := newPurchaseService(store, time.Now())
		require.NoError(t, s.RequestPurchase(ctx, buyerID, "p1"))
		store.AssertExpectations(t)
	})

	t.Run("duplicate pair conflicts", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("AddPendingPurchase", ctx, mock.Anything).Return(model.ErrConflict)

		s := newPurchaseService(store, time.Now())
		err := s.RequestPurchase(ctx, buyerID, "p1")
		assert.True(t, errors.Is(err, model.ErrConflict))
	})

	t.Run("unknown product", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("AddPendingPurchase", ctx, mock.Anything).Return(model.ErrNotFound)

		s := newPurchaseService(store, time.Now())
		err := s.RequestPurchase(ctx, buyerID, "missing")
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})
}

func TestPurchase_SubmitProof(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("AttachProof", ctx, buyerID, "p1", "proofs/abc").Return(nil)

		s := newPurchaseService(store, time.Now())
		require.NoError(t, s.SubmitProof(ctx, buyerID, "p1", "proofs/abc"))
		store.AssertExpectations(t)
	})

	t.Run("no prior request", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("AttachProof", ctx, buyerID, "p1", "proofs/abc").Return(model.ErrNotFound)

		s := newPurchaseService(store, time.Now())
		err := s.SubmitProof(ctx, buyerID, "p1", "proofs/abc")
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})
}

func TestPurchase_Approve(t *testing.T) {
	ctx := context.Background()
	creds := model.Credentials{Username: "svc-user", Password: "svc-pass"}

	t.Run("requires admin", func(t *testing.T) {
		store := &MockCatalogStore{}

		s := newPurchaseService(store, time.Now())
		_, err := s.Approve(ctx, buyerID, buyerID, "p1")
		assert.True(t, errors.Is(err, model.ErrUnauthorized))
		store.AssertNotCalled(t, "ResolvePurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("returns disclosure instruction", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("ResolvePurchase", ctx, buyerID, "p1", model.PurchaseApproved).
			Return(model.Product{ID: "p1", Credentials: creds, Buyers: []int64{buyerID}}, nil)

		s := newPurchaseService(store, time.Now())
		approval, err := s.Approve(ctx, adminID, buyerID, "p1")
		require.NoError(t, err)
		assert.Equal(t, model.Approval{UserID: buyerID, ProductID: "p1", Credentials: creds}, approval)
	})

	t.Run("double approval conflicts", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("ResolvePurchase", ctx, buyerID, "p1", model.PurchaseApproved).
			Return(model.Product{}, model.ErrNotFound)
		store.On("GetProduct", ctx, "p1").
			Return(model.Product{ID: "p1", Buyers: []int64{buyerID}}, nil)

		s := newPurchaseService(store, time.Now())
		_, err := s.Approve(ctx, adminID, buyerID, "p1")
		assert.True(t, errors.Is(err, model.ErrConflict))
	})

	t.Run("never requested", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("ResolvePurchase", ctx, buyerID, "p1", model.PurchaseApproved).
			Return(model.Product{}, model.ErrNotFound)
		store.On("GetProduct", ctx, "p1").
			Return(model.Product{ID: "p1"}, nil)

		s := newPurchaseService(store, time.Now())
		_, err := s.Approve(ctx, adminID, buyerID, "p1")
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("unknown product", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("ResolvePurchase", ctx, buyerID, "missing", model.PurchaseApproved).
			Return(model.Product{}, model.ErrNotFound)
		store.On("GetProduct", ctx, "missing").
			Return(model.Product{}, model.ErrNotFound)

		s := newPurchaseService(store, time.Now())
		_, err := s.Approve(ctx, adminID, buyerID, "missing")
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})
}

func TestPurchase_Reject(t *testing.T) {
	ctx := context.Background()

	t.Run("requires admin", func(t *testing.T) {
		store := &MockCatalogStore{}

		s := newPurchaseService(store, time.Now())
		err := s.Reject(ctx, buyerID, buyerID, "p1")
		assert.True(t, errors.Is(err, model.ErrUnauthorized))
	})

	t.Run("resolves without disclosure", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("ResolvePurchase", ctx, buyerID, "p1", model.PurchaseRejected).
			Return(model.Product{ID: "p1"}, nil)

		s := newPurchaseService(store, time.Now())
		require.NoError(t, s.Reject(ctx, adminID, buyerID, "p1"))
		store.AssertExpectations(t)
	})
}

func TestPurchase_GetCode(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	const secret = "JBSWY3DPEHPK3PXP"

	product := model.Product{ID: "p1", Secret: secret, Buyers: []int64{buyerID}}

	t.Run("buyer gets current code", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("GetProduct", ctx, "p1").Return(product, nil)

		s := newPurchaseService(store, now)
		code, err := s.GetCode(ctx, buyerID, "p1")
		require.NoError(t, err)

		want, err := totp.Code(secret, now)
		require.NoError(t, err)
		assert.Equal(t, want, code)
		assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)
	})

	t.Run("admin may read any code", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("GetProduct", ctx, "p1").Return(product, nil)

		s := newPurchaseService(store, now)
		_, err := s.GetCode(ctx, adminID, "p1")
		assert.NoError(t, err)
	})

	t.Run("non-buyer unauthorized", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("GetProduct", ctx, "p1").Return(product, nil)

		s := newPurchaseService(store, now)
		_, err := s.GetCode(ctx, int64(99), "p1")
		assert.True(t, errors.Is(err, model.ErrUnauthorized))
	})

	t.Run("unknown product", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("GetProduct", ctx, "missing").Return(model.Product{}, model.ErrNotFound)

		s := newPurchaseService(store, now)
		_, err := s.GetCode(ctx, buyerID, "missing")
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("missing secret", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("GetProduct", ctx, "p1").
			Return(model.Product{ID: "p1", Buyers: []int64{buyerID}}, nil)

		s := newPurchaseService(store, now)
		_, err := s.GetCode(ctx, buyerID, "p1")
		assert.True(t, errors.Is(err, model.ErrMissingSecret))
	})

	t.Run("malformed secret", func(t *testing.T) {
		store := &MockCatalogStore{}
		store.On("GetProduct", ctx, "p1").
			Return(model.Product{ID: "p1", Secret: "not base32!", Buyers: []int64{buyerID}}, nil)

		s := newPurchaseService(store, now)
		_, err := s.GetCode(ctx, buyerID, "p1")
		assert.True(t, errors.Is(err, model.ErrInvalidSecret))
	})
}

func TestPurchase_ListPendingPurchases(t *testing.T) {
	ctx := context.Background()

	t.Run("requires admin", func(t *testing.T) {
		store := &MockCatalogStore{}

		s := newPurchaseService(store, time.Now())
		_, err := s.ListPendingPurchases(ctx, buyerID)
		assert.True(t, errors.Is(err, model.ErrUnauthorized))
	})

	t.Run("returns queue", func(t *testing.T) {
		store := &MockCatalogStore{}
		queue := []model.PendingPurchase{{UserID: buyerID, ProductID: "p1", State: model.PurchaseStateProofSubmitted}}
		store.On("ListPendingPurchases", ctx).Return(queue, nil)

		s := newPurchaseService(store, time.Now())
		got, err := s.ListPendingPurchases(ctx, adminID)
		require.NoError(t, err)
		assert.Equal(t, queue, got)
	})
}

// Full lifecycle against the in-memory store: add product, request, submit
// proof, approve, read the code.
func TestPurchase_Lifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	store := testutil.NewMemStore()
	guard := auth.NewGuard([]int64{adminID})
	log := testutil.MakeNoopLogger()
	purchases := NewPurchase(store, guard, fixedClock{at: now}, log)
	catalog := NewCatalog(store, guard, log)

	require.NoError(t, catalog.AddProduct(ctx, adminID, model.Product{
		ID:          "p1",
		DisplayName: "Streaming account",
		Price:       "10 USD",
		Credentials: model.Credentials{Username: "acc", Password: "pw"},
		Secret:      "JBSWY3DPEHPK3PXP",
	}))

	// Code access before purchase is denied.
	_, err := purchases.GetCode(ctx, buyerID, "p1")
	assert.True(t, errors.Is(err, model.ErrUnauthorized))

	require.NoError(t, purchases.RequestPurchase(ctx, buyerID, "p1"))

	// A second request before resolution conflicts.
	err = purchases.RequestPurchase(ctx, buyerID, "p1")
	assert.True(t, errors.Is(err, model.ErrConflict))

	require.NoError(t, purchases.SubmitProof(ctx, buyerID, "p1", "img-1"))

	// Proof cannot be submitted twice.
	err = purchases.SubmitProof(ctx, buyerID, "p1", "img-2")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	approval, err := purchases.Approve(ctx, adminID, buyerID, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.Credentials{Username: "acc", Password: "pw"}, approval.Credentials)

	buyers, err := catalog.ListBuyers(ctx, adminID, "p1")
	require.NoError(t, err)
	assert.Equal(t, []int64{buyerID}, buyers)

	// A second approval is a conflict, and the buyer appears exactly once.
	_, err = purchases.Approve(ctx, adminID, buyerID, "p1")
	assert.True(t, errors.Is(err, model.ErrConflict))
	buyers, err = catalog.ListBuyers(ctx, adminID, "p1")
	require.NoError(t, err)
	assert.Equal(t, []int64{buyerID}, buyers)

	code, err := purchases.GetCode(ctx, buyerID, "p1")
	require.NoError(t, err)
	want, err := totp.Code("JBSWY3DPEHPK3PXP", now)
	require.NoError(t, err)
	assert.Equal(t, want, code)

	// Revoking the buyer revokes code access.
	require.NoError(t, catalog.RemoveBuyer(ctx, adminID, "p1", buyerID))
	_, err = purchases.GetCode(ctx, buyerID, "p1")
	assert.True(t, errors.Is(err, model.ErrUnauthorized))
}

func TestPurchase_ConcurrentApprovals(t *testing.T) {
	ctx := context.Background()

	store := testutil.NewMemStore()
	guard := auth.NewGuard([]int64{adminID})
	log := testutil.MakeNoopLogger()
	purchases := NewPurchase(store, guard, model.SystemClock{}, log)
	catalog := NewCatalog(store, guard, log)

	const users = 16
	productIDs := []string{"p1", "p2"}
	for _, id := range productIDs {
		require.NoError(t, catalog.AddProduct(ctx, adminID, model.Product{ID: id, Secret: "JBSWY3DPEHPK3PXP"}))
	}

	for _, productID := range productIDs {
		for userID := int64(100); userID < 100+users; userID++ {
			require.NoError(t, purchases.RequestPurchase(ctx, userID, productID))
			require.NoError(t, purchases.SubmitProof(ctx, userID, productID, "img"))
		}
	}

	var wg sync.WaitGroup
	for _, productID := range productIDs {
		for userID := int64(100); userID < 100+users; userID++ {
			wg.Add(1)
			go func(userID int64, productID string) {
				defer wg.Done()
				_, err := purchases.Approve(ctx, adminID, userID, productID)
				assert.NoError(t, err)
			}(userID, productID)
		}
	}
	wg.Wait()

	for _, productID := range productIDs {
		buyers, err := catalog.ListBuyers(ctx, adminID, productID)
		require.NoError(t, err)
		assert.Len(t, buyers, users)
	}

	queue, err := purchases.ListPendingPurchases(ctx, adminID)
	require.NoError(t, err)
	assert.Empty(t, queue)
}
