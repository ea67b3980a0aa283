package model

import "time"

// PurchaseState enumerates the states of a pending purchase.
type PurchaseState string

const (
	// PurchaseStateRequested means the user expressed intent to buy.
	PurchaseStateRequested PurchaseState = "requested"
	// PurchaseStateProofSubmitted means payment evidence is attached and the
	// purchase awaits an admin decision.
	PurchaseStateProofSubmitted PurchaseState = "proof_submitted"
)

// PurchaseOutcome is the admin decision that resolves a pending purchase.
type PurchaseOutcome string

const (
	// PurchaseApproved grants the user buyer access.
	PurchaseApproved PurchaseOutcome = "approved"
	// PurchaseRejected discards the purchase without disclosure.
	PurchaseRejected PurchaseOutcome = "rejected"
)

// PendingPurchase is a purchase intent keyed by (UserID, ProductID). At most
// one unresolved entry exists per pair; resolution deletes it.
type PendingPurchase struct {
	UserID    int64
	ProductID string
	State     PurchaseState
	ProofRef  string
	CreatedAt time.Time
}

// Approval instructs the transport layer to deliver credentials to a user.
// It is produced only after the corresponding store mutation committed.
type Approval struct {
	UserID      int64
	ProductID   string
	Credentials Credentials
}
