package postgres

import (
	"context"

	"github.com/credvend/credvend-server/internal/model"
)

// AddPendingPurchase records a new purchase intent. The table's primary key
// enforces the at-most-one-unresolved-purchase invariant per (user, product)
// pair; the foreign key rejects unknown products.
func (r *Catalog) AddPendingPurchase(ctx context.Context, purchase model.PendingPurchase) error {
	query := `
		INSERT INTO pending_purchases (user_id, product_id, state, proof_ref)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query,
		purchase.UserID, purchase.ProductID, string(purchase.State), purchase.ProofRef,
	)
	if err != nil {
		switch pgErrCode(err) {
		case pgUniqueViolation:
			return model.ErrConflict
		case pgForeignKeyViolation:
			return model.ErrNotFound
		}
		return storageErr("add pending purchase", err)
	}

	return nil
}

// AttachProof moves a Requested purchase to ProofSubmitted, storing the proof
// reference. The state filter rejects both proof-without-request and a second
// submission.
func (r *Catalog) AttachProof(ctx context.Context, userID int64, productID string, proofRef string) error {
	query := `
		UPDATE pending_purchases
		SET state = $4, proof_ref = $3
		WHERE user_id = $1 AND product_id = $2 AND state = $5`

	tag, err := r.db.Exec(ctx, query,
		userID, productID, proofRef,
		string(model.PurchaseStateProofSubmitted), string(model.PurchaseStateRequested),
	)
	if err != nil {
		return storageErr("attach proof", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	return nil
}

// ResolvePurchase deletes the pending entry and, on approval, adds the user
// to the product's buyers if absent. Runs in one transaction so a concurrent
// resolve of the same pair cannot double-credit. Returns the product as of
// the resolution so credentials can be disclosed from committed state.
func (r *Catalog) ResolvePurchase(ctx context.Context, userID int64, productID string, outcome model.PurchaseOutcome) (model.Product, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Product{}, storageErr("begin resolve purchase", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM pending_purchases WHERE user_id = $1 AND product_id = $2`,
		userID, productID,
	)
	if err != nil {
		return model.Product{}, storageErr("delete pending purchase", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Product{}, model.ErrNotFound
	}

	if outcome == model.PurchaseApproved {
		_, err := tx.Exec(ctx,
			`INSERT INTO product_buyers (product_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			productID, userID,
		)
		if err != nil {
			return model.Product{}, storageErr("add buyer", err)
		}
	}

	product, err := r.getProduct(ctx, tx, productID)
	if err != nil {
		return model.Product{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Product{}, storageErr("commit resolve purchase", err)
	}

	return product, nil
}

func (r *Catalog) ListPendingPurchases(ctx context.Context) ([]model.PendingPurchase, error) {
	query := `
		SELECT user_id, product_id, state, proof_ref, created_at
		FROM pending_purchases
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, storageErr("list pending purchases", err)
	}
	defer rows.Close()

	var purchases []model.PendingPurchase
	for rows.Next() {
		var p model.PendingPurchase
		var state string
		if err := rows.Scan(&p.UserID, &p.ProductID, &state, &p.ProofRef, &p.CreatedAt); err != nil {
			return nil, storageErr("scan pending purchase", err)
		}
		p.State = model.PurchaseState(state)
		purchases = append(purchases, p)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("list pending purchases", err)
	}

	return purchases, nil
}
