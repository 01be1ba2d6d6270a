package credits

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

type fakeUser struct {
	email   string
	name    string
	credits int64
	pct     int
}

type fakeEntry struct {
	userID       string
	amount       int64
	reason       string
	balanceAfter int64
	eventKey     string
}

// fakeLedgerDB is an in-memory stand-in for the accounting tables. InTx hands
// the callback the store itself: the service's single-transaction shape means
// a failing statement aborts before any later mutation runs.
type fakeLedgerDB struct {
	users     map[string]*fakeUser
	entries   []fakeEntry
	eventKeys map[string]bool
	summaries map[string]int64
	vendor    int
}

func newFakeLedgerDB() *fakeLedgerDB {
	return &fakeLedgerDB{
		users:     map[string]*fakeUser{},
		eventKeys: map[string]bool{},
		summaries: map[string]int64{},
	}
}

func (f *fakeLedgerDB) ledgerSum(userID string) int64 {
	var sum int64
	for _, e := range f.entries {
		if e.userID == userID {
			sum += e.amount
		}
	}
	return sum
}

func (f *fakeLedgerDB) InTx(ctx context.Context, fn func(infra.SQLExecutor) error) error {
	return fn(f)
}

func (f *fakeLedgerDB) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	switch query {
	case sqlinline.QUpsertUserSummary:
		f.summaries[args[0].(string)] = args[3].(int64)
		return pgconn.CommandTag{}, nil
	default:
		return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %s", query)
	}
}

func (f *fakeLedgerDB) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected query: %s", query)
}

func (f *fakeLedgerDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	switch query {
	case sqlinline.QSelectUserForUpdate:
		u, ok := f.users[args[0].(string)]
		if !ok {
			return rowFunc(nil)
		}
		return rowFunc(func(dest ...any) error {
			*dest[0].(*string) = u.email
			*dest[1].(*string) = u.name
			*dest[2].(*int64) = u.credits
			*dest[3].(*int) = u.pct
			return nil
		})
	case sqlinline.QInsertLedgerEntry:
		key := args[4].(string)
		if key != "" && f.eventKeys[key] {
			return rowFunc(func(...any) error {
				return &pgconn.PgError{Code: "23505", ConstraintName: "ux_credit_ledger_event_key"}
			})
		}
		if key != "" {
			f.eventKeys[key] = true
		}
		f.entries = append(f.entries, fakeEntry{
			userID:       args[0].(string),
			amount:       args[1].(int64),
			reason:       args[2].(string),
			balanceAfter: args[3].(int64),
			eventKey:     key,
		})
		return rowFunc(func(dest ...any) error {
			*dest[0].(*string) = fmt.Sprintf("entry-%d", len(f.entries))
			return nil
		})
	case sqlinline.QAdjustUserCredits:
		u, ok := f.users[args[0].(string)]
		if !ok {
			return rowFunc(nil)
		}
		u.credits += args[1].(int64)
		return rowFunc(func(dest ...any) error {
			*dest[0].(*int64) = u.credits
			return nil
		})
	case sqlinline.QInsertVendorLedgerEntry:
		f.vendor++
		return rowFunc(func(dest ...any) error {
			*dest[0].(*string) = fmt.Sprintf("vendor-%d", f.vendor)
			return nil
		})
	default:
		return rowFunc(func(...any) error {
			return fmt.Errorf("unexpected query: %s", query)
		})
	}
}

type rowFunc func(dest ...any) error

func (r rowFunc) Scan(dest ...any) error {
	if r == nil {
		return pgx.ErrNoRows
	}
	return r(dest...)
}

func newTestService(db *fakeLedgerDB) *Service {
	return NewService(db, zerolog.Nop())
}

func TestAddCreditsKeepsLedgerAndBalanceInLockstep(t *testing.T) {
	db := newFakeLedgerDB()
	db.users["u1"] = &fakeUser{email: "ana@example.com", name: "Ana", pct: 100}
	svc := newTestService(db)

	ctx := context.Background()
	if _, err := svc.AddCredits(ctx, "u1", 100, domain.LedgerReasonPurchase, Meta{}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.SpendCredits(ctx, "u1", 30, domain.LedgerReasonSpend, Meta{}); err != nil {
		t.Fatalf("spend: %v", err)
	}
	balance, err := svc.AddCredits(ctx, "u1", 5, domain.LedgerReasonAdjust, Meta{})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}

	if balance != 75 {
		t.Fatalf("balance: got %d, want 75", balance)
	}
	if db.users["u1"].credits != db.ledgerSum("u1") {
		t.Fatalf("cached balance %d diverges from ledger sum %d", db.users["u1"].credits, db.ledgerSum("u1"))
	}
	if db.summaries["u1"] != 75 {
		t.Fatalf("summary: got %d, want 75", db.summaries["u1"])
	}
	if got := len(db.entries); got != 3 {
		t.Fatalf("entries: got %d, want 3", got)
	}
	if db.entries[2].balanceAfter != 75 {
		t.Fatalf("balance_after: got %d, want 75", db.entries[2].balanceAfter)
	}
}

func TestSpendCreditsRefusesOverdraft(t *testing.T) {
	db := newFakeLedgerDB()
	db.users["u1"] = &fakeUser{credits: 10, pct: 100}
	svc := newTestService(db)

	_, err := svc.SpendCredits(context.Background(), "u1", 11, domain.LedgerReasonSpend, Meta{})
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if db.users["u1"].credits != 10 {
		t.Fatalf("balance changed on refused spend: %d", db.users["u1"].credits)
	}
	if len(db.entries) != 0 {
		t.Fatalf("ledger grew on refused spend: %d entries", len(db.entries))
	}
}

func TestReconciliationDeltaMayGoNegative(t *testing.T) {
	// Vendor-confirmed consumption bypasses the balance floor: a success
	// delta must land even when the user already spent everything else.
	db := newFakeLedgerDB()
	db.users["u1"] = &fakeUser{credits: 1, pct: 100}
	svc := newTestService(db)

	balance, err := svc.AddCredits(context.Background(), "u1", -3, domain.LedgerReasonSpend, Meta{})
	if err != nil {
		t.Fatalf("delta spend: %v", err)
	}
	if balance != -2 {
		t.Fatalf("balance: got %d, want -2", balance)
	}
	if db.users["u1"].credits != db.ledgerSum("u1") {
		t.Fatalf("cached balance %d diverges from ledger sum %d", db.users["u1"].credits, db.ledgerSum("u1"))
	}
}

func TestAddCreditsRejectsZeroAmount(t *testing.T) {
	db := newFakeLedgerDB()
	db.users["u1"] = &fakeUser{pct: 100}
	svc := newTestService(db)

	if _, err := svc.AddCredits(context.Background(), "u1", 0, domain.LedgerReasonAdjust, Meta{}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.SpendCredits(context.Background(), "u1", 0, domain.LedgerReasonSpend, Meta{}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.SpendCredits(context.Background(), "u1", -4, domain.LedgerReasonSpend, Meta{}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative spend, got %v", err)
	}
}

func TestAddCreditsUnknownUser(t *testing.T) {
	svc := newTestService(newFakeLedgerDB())

	if _, err := svc.AddCredits(context.Background(), "ghost", 10, domain.LedgerReasonPurchase, Meta{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddCreditsDuplicateEventKeyIsNoOp(t *testing.T) {
	db := newFakeLedgerDB()
	db.users["u1"] = &fakeUser{pct: 100}
	svc := newTestService(db)

	ctx := context.Background()
	meta := Meta{EventKey: "stripe:cs_test_123"}
	if _, err := svc.AddCredits(ctx, "u1", 50, domain.LedgerReasonPurchase, meta); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if _, err := svc.AddCredits(ctx, "u1", 50, domain.LedgerReasonPurchase, meta); !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}

	if db.users["u1"].credits != 50 {
		t.Fatalf("replay changed balance: %d", db.users["u1"].credits)
	}
	if len(db.entries) != 1 {
		t.Fatalf("replay appended a ledger entry: %d entries", len(db.entries))
	}
}
