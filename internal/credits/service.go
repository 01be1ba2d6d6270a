package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// Meta travels with a ledger entry. EventKey is stored in its own indexed
// column; the rest lands in the jsonb meta payload.
type Meta struct {
	EventKey string `json:"-"`

	JobID           string `json:"job_id,omitempty"`
	Vendor          string `json:"vendor,omitempty"`
	StripeSessionID string `json:"stripe_session_id,omitempty"`
	StripeEventID   string `json:"stripe_event_id,omitempty"`
	HeygenEventID   string `json:"heygen_event_id,omitempty"`
	AmountUSDCents  int64  `json:"amount_usd_cents,omitempty"`
	Country         string `json:"country,omitempty"`
	Note            string `json:"note,omitempty"`
}

// Service is the single chokepoint for credit movements. Every call appends a
// ledger entry, adjusts the cached user balance and refreshes the summary
// projection inside one transaction, so the invariant
// users.credits == sum(credit_ledger.amount) holds after every return.
type Service struct {
	SQL    infra.TxExecutor
	Logger zerolog.Logger
}

func NewService(sql infra.TxExecutor, logger zerolog.Logger) *Service {
	return &Service{SQL: sql, Logger: logger}
}

// AddCredits appends a signed credit movement for the user and returns the
// balance after the movement. A zero amount is rejected. When meta.EventKey
// names an already-processed vendor event the call is a no-op and
// domain.ErrDuplicateOperation is returned.
func (s *Service) AddCredits(ctx context.Context, userID string, amount int64, reason domain.LedgerReason, meta Meta) (int64, error) {
	return s.append(ctx, userID, amount, reason, meta, false)
}

// SpendCredits debits a positive amount from the user, refusing to take the
// balance below zero. Refunds and reconciliation deltas go through AddCredits
// instead; only user-initiated pre-deductions carry the balance floor.
func (s *Service) SpendCredits(ctx context.Context, userID string, amount int64, reason domain.LedgerReason, meta Meta) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("spend amount must be positive: %w", domain.ErrInvalidAmount)
	}
	return s.append(ctx, userID, -amount, reason, meta, true)
}

func (s *Service) append(ctx context.Context, userID string, amount int64, reason domain.LedgerReason, meta Meta, enforceBalance bool) (int64, error) {
	if amount == 0 {
		return 0, domain.ErrInvalidAmount
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("marshal ledger meta: %w", err)
	}

	var balanceAfter int64
	err = s.SQL.InTx(ctx, func(tx infra.SQLExecutor) error {
		var email, name string
		var current int64
		var pct int
		row := tx.QueryRow(ctx, sqlinline.QSelectUserForUpdate, userID)
		if err := row.Scan(&email, &name, &current, &pct); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
			}
			return fmt.Errorf("lock user: %w", err)
		}

		balanceAfter = current + amount
		if enforceBalance && balanceAfter < 0 {
			return domain.ErrInsufficientCredits
		}

		var entryID string
		row = tx.QueryRow(ctx, sqlinline.QInsertLedgerEntry,
			userID, amount, string(reason), balanceAfter, meta.EventKey,
			email, name, pct, metaJSON,
		)
		if err := row.Scan(&entryID); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateOperation
			}
			return fmt.Errorf("insert ledger entry: %w", err)
		}

		var updated int64
		row = tx.QueryRow(ctx, sqlinline.QAdjustUserCredits, userID, amount)
		if err := row.Scan(&updated); err != nil {
			return fmt.Errorf("adjust balance: %w", err)
		}
		if updated != balanceAfter {
			// Cannot happen while the row lock is held; abort rather than
			// commit a ledger/balance mismatch.
			return fmt.Errorf("balance drift for user %s: ledger says %d, cache says %d", userID, balanceAfter, updated)
		}

		if _, err := tx.Exec(ctx, sqlinline.QUpsertUserSummary, userID, email, name, balanceAfter, pct); err != nil {
			return fmt.Errorf("upsert summary: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.Logger.Info().
		Str("user_id", userID).
		Int64("amount", amount).
		Str("reason", string(reason)).
		Int64("balance_after", balanceAfter).
		Msg("credit ledger entry appended")
	return balanceAfter, nil
}

// VendorEntry describes one row of the vendor economics trail.
type VendorEntry struct {
	UserID        string
	Type          domain.VendorLedgerType
	Vendor        domain.Vendor
	Credits       int64
	VendorCostUSD decimal.Decimal
	RevenueUSD    decimal.Decimal
	Meta          Meta
}

// RecordVendorEntry appends a reporting row to the vendor ledger. Reporting
// failures must never block the user-facing credit operation, so callers log
// the returned error and move on.
func (s *Service) RecordVendorEntry(ctx context.Context, e VendorEntry) error {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("marshal vendor meta: %w", err)
	}
	margin := e.RevenueUSD.Sub(e.VendorCostUSD)
	var id string
	row := s.SQL.QueryRow(ctx, sqlinline.QInsertVendorLedgerEntry,
		e.UserID, string(e.Type), string(e.Vendor), e.Credits,
		e.VendorCostUSD.String(), e.RevenueUSD.String(), margin.String(), metaJSON,
	)
	if err := row.Scan(&id); err != nil {
		return fmt.Errorf("insert vendor ledger entry: %w", err)
	}
	return nil
}

// CreditsUSD converts a credit count to a USD figure at the given cents rate.
func CreditsUSD(credits, centsPerCredit int64) decimal.Decimal {
	return decimal.NewFromInt(credits * centsPerCredit).Div(decimal.NewFromInt(100))
}

// CentsUSD converts a cent amount to a USD decimal.
func CentsUSD(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
