package domain

import "time"

// LedgerReason enumerates why a credit movement happened.
type LedgerReason string

const (
	LedgerReasonPurchase LedgerReason = "purchase"
	LedgerReasonSpend    LedgerReason = "spend"
	LedgerReasonAdjust   LedgerReason = "adjust"
)

// CreditLedgerEntry is an immutable append-only record of a single credit
// balance change. EventKey, when set, carries the idempotency key for the
// vendor event that produced the entry; a unique index on it turns replayed
// webhook deliveries into no-ops.
type CreditLedgerEntry struct {
	ID                string
	UserID            string
	Amount            int64
	Reason            LedgerReason
	BalanceAfter      int64
	EventKey          string
	UserEmail         string
	UserName          string
	DollarToCreditPct int
	Meta              []byte
	CreatedAt         time.Time
}

// VendorLedgerType enumerates vendor-facing economics entry types.
type VendorLedgerType string

const (
	VendorLedgerPurchase    VendorLedgerType = "purchase"
	VendorLedgerConsumption VendorLedgerType = "consumption"
)

// Vendor identifies the external party an economics entry concerns.
type Vendor string

const (
	VendorStripe Vendor = "stripe"
	VendorHeygen Vendor = "heygen"
)

// VendorLedgerEntry records the USD economics of a purchase or a vendor
// consumption. Reporting only; nothing reads it back into the credit system.
type VendorLedgerEntry struct {
	ID            string
	UserID        string
	Type          VendorLedgerType
	Vendor        Vendor
	Credits       int64
	VendorCostUSD string
	RevenueUSD    string
	MarginUSD     string
	Meta          []byte
	CreatedAt     time.Time
}
