package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/reconcile"
	"server/internal/sqlinline"
)

type fakeUser struct {
	email   string
	name    string
	role    string
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

type fakeVendorEntry struct {
	userID    string
	entryType string
	vendor    string
	credits   int64
}

// fakeDB backs the handler tests with an in-memory rendition of the schema,
// dispatching on the inline query constants the way the runner would hit
// postgres. InTx hands the callback the store itself.
type fakeDB struct {
	users     map[string]*fakeUser
	jobs      map[string]*domain.Job
	entries   []fakeEntry
	eventKeys map[string]bool
	summaries map[string]int64
	vendor    []fakeVendorEntry
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:     map[string]*fakeUser{},
		jobs:      map[string]*domain.Job{},
		eventKeys: map[string]bool{},
		summaries: map[string]int64{},
	}
}

func (f *fakeDB) ledgerSum(userID string) int64 {
	var sum int64
	for _, e := range f.entries {
		if e.userID == userID {
			sum += e.amount
		}
	}
	return sum
}

func (f *fakeDB) InTx(_ context.Context, fn func(infra.SQLExecutor) error) error {
	return fn(f)
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	switch query {
	case sqlinline.QUpsertUserSummary:
		f.summaries[args[0].(string)] = args[3].(int64)
		return pgconn.CommandTag{}, nil
	case sqlinline.QMarkJobQueued:
		job, ok := f.jobs[args[0].(string)]
		if !ok {
			return pgconn.CommandTag{}, nil
		}
		job.Status = domain.JobStatusQueued
		job.HeygenVideoID = args[1].(string)
		job.TranslateID = args[2].(string)
		job.ProviderJobID = args[3].(string)
		job.UpdatedAt = time.Now()
		return pgconn.CommandTag{}, nil
	default:
		return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %s", query)
	}
}

func (f *fakeDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	switch query {
	case sqlinline.QSelectUserForUpdate:
		u, ok := f.users[args[0].(string)]
		if !ok {
			return newSimpleRow(nil)
		}
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], u.email)
			assign(dest[1], u.name)
			assign(dest[2], u.credits)
			assign(dest[3], u.pct)
			return nil
		})
	case sqlinline.QSelectUserByID:
		id := args[0].(string)
		u, ok := f.users[id]
		if !ok {
			return newSimpleRow(nil)
		}
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], id)
			assign(dest[1], u.email)
			assign(dest[2], u.name)
			assign(dest[3], "")
			assign(dest[4], "pt")
			assign(dest[5], u.role)
			assign(dest[6], u.credits)
			assign(dest[7], u.pct)
			assign(dest[8], time.Now())
			assign(dest[9], time.Now())
			return nil
		})
	case sqlinline.QHealthcheck:
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], 1)
			return nil
		})
	case sqlinline.QUpsertUserByEmail:
		email := args[0].(string)
		var id string
		var u *fakeUser
		for uid, existing := range f.users {
			if existing.email == email {
				id, u = uid, existing
				break
			}
		}
		if u == nil {
			id = fmt.Sprintf("user-%d", len(f.users)+1)
			u = &fakeUser{email: email, role: "user", pct: args[4].(int)}
			f.users[id] = u
		}
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], id)
			assign(dest[1], u.email)
			assign(dest[2], u.name)
			assign(dest[3], u.role)
			assign(dest[4], u.credits)
			assign(dest[5], u.pct)
			return nil
		})
	case sqlinline.QInsertLedgerEntry:
		key := args[4].(string)
		if key != "" && f.eventKeys[key] {
			return newSimpleRow(func(...any) error {
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
		id := fmt.Sprintf("entry-%d", len(f.entries))
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], id)
			return nil
		})
	case sqlinline.QAdjustUserCredits:
		u, ok := f.users[args[0].(string)]
		if !ok {
			return newSimpleRow(nil)
		}
		u.credits += args[1].(int64)
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], u.credits)
			return nil
		})
	case sqlinline.QSumLedgerForUser:
		sum := f.ledgerSum(args[0].(string))
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], sum)
			return nil
		})
	case sqlinline.QInsertVendorLedgerEntry:
		f.vendor = append(f.vendor, fakeVendorEntry{
			userID:    args[0].(string),
			entryType: args[1].(string),
			vendor:    args[2].(string),
			credits:   args[3].(int64),
		})
		id := fmt.Sprintf("vendor-%d", len(f.vendor))
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], id)
			return nil
		})
	case sqlinline.QInsertJob:
		job := &domain.Job{
			ID:               args[0].(string),
			UserID:           args[1].(string),
			Type:             domain.JobType(args[2].(string)),
			Status:           domain.JobStatusDraft,
			EstimatedCredits: args[3].(int64),
			CreatedAt:        time.Now(),
			UpdatedAt:        time.Now(),
		}
		if raw, ok := args[4].([]byte); ok {
			job.Params = append([]byte(nil), raw...)
		}
		f.jobs[job.ID] = job
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], job.ID)
			return nil
		})
	case sqlinline.QSelectJobByID:
		return f.jobRow(f.jobs[args[0].(string)])
	case sqlinline.QSelectJobForUser:
		job := f.jobs[args[0].(string)]
		if job != nil && job.UserID != args[1].(string) {
			job = nil
		}
		return f.jobRow(job)
	case sqlinline.QSelectJobByHeygenVideoID:
		return f.jobRow(f.findJob(func(j *domain.Job) bool { return j.HeygenVideoID == args[0].(string) }))
	case sqlinline.QSelectJobByTranslateID:
		return f.jobRow(f.findJob(func(j *domain.Job) bool { return j.TranslateID == args[0].(string) }))
	case sqlinline.QSelectJobByProviderJobID:
		return f.jobRow(f.findJob(func(j *domain.Job) bool { return j.ProviderJobID == args[0].(string) }))
	case sqlinline.QUpdateJobStatus:
		job, ok := f.jobs[args[0].(string)]
		if !ok || string(job.Status) != args[1].(string) {
			return newSimpleRow(nil)
		}
		job.Status = domain.JobStatus(args[2].(string))
		if msg := args[3].(string); msg != "" {
			job.ErrorMessage = msg
		}
		job.UpdatedAt = time.Now()
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], job.ID)
			return nil
		})
	case sqlinline.QFinalizeJobSuccess:
		job, ok := f.jobs[args[0].(string)]
		if !ok || string(job.Status) != args[1].(string) {
			return newSimpleRow(nil)
		}
		actual := args[2].(int64)
		job.Status = domain.JobStatusDone
		job.ActualCredits = &actual
		if url := args[3].(string); url != "" {
			job.ResultURL = url
		}
		cost := args[4].(string)
		job.VendorCostUSD = &cost
		job.UpdatedAt = time.Now()
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], job.ID)
			return nil
		})
	case sqlinline.QSetUserRate:
		u, ok := f.users[args[0].(string)]
		if !ok {
			return newSimpleRow(nil)
		}
		u.pct = args[1].(int)
		return newSimpleRow(func(dest ...any) error {
			assign(dest[0], u.pct)
			return nil
		})
	default:
		return newSimpleRow(func(...any) error {
			return fmt.Errorf("unexpected query: %s", query)
		})
	}
}

func (f *fakeDB) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	switch query {
	case sqlinline.QListJobsForUser:
		var jobs []*domain.Job
		for _, j := range f.jobs {
			if j.UserID == args[0].(string) {
				jobs = append(jobs, j)
			}
		}
		return &jobListRows{jobs: jobs}, nil
	case sqlinline.QListLedgerForUser:
		var entries []fakeEntry
		for _, e := range f.entries {
			if e.userID == args[0].(string) {
				entries = append(entries, e)
			}
		}
		return &ledgerRows{entries: entries}, nil
	default:
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
}

func (f *fakeDB) findJob(match func(*domain.Job) bool) *domain.Job {
	for _, j := range f.jobs {
		if match(j) {
			return j
		}
	}
	return nil
}

func (f *fakeDB) jobRow(job *domain.Job) pgx.Row {
	if job == nil {
		return newSimpleRow(nil)
	}
	return newSimpleRow(func(dest ...any) error {
		assign(dest[0], job.ID)
		assign(dest[1], job.UserID)
		assign(dest[2], job.Type)
		assign(dest[3], job.Status)
		assign(dest[4], job.EstimatedCredits)
		assign(dest[5], job.ActualCredits)
		assign(dest[6], job.HeygenVideoID)
		assign(dest[7], job.TranslateID)
		assign(dest[8], job.ProviderJobID)
		assign(dest[9], job.ResultURL)
		assign(dest[10], job.ErrorMessage)
		assign(dest[11], job.VendorCostUSD)
		assign(dest[12], job.Params)
		assign(dest[13], job.CreatedAt)
		assign(dest[14], job.UpdatedAt)
		return nil
	})
}

type jobListRows struct {
	testRowsBase
	jobs []*domain.Job
	idx  int
}

func (r *jobListRows) Next() bool {
	if r.idx >= len(r.jobs) {
		return false
	}
	r.idx++
	return true
}

func (r *jobListRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.jobs) {
		return pgx.ErrNoRows
	}
	j := r.jobs[r.idx-1]
	assign(dest[0], j.ID)
	assign(dest[1], string(j.Type))
	assign(dest[2], string(j.Status))
	assign(dest[3], j.EstimatedCredits)
	assign(dest[4], j.ActualCredits)
	assign(dest[5], j.ResultURL)
	assign(dest[6], j.ErrorMessage)
	assign(dest[7], j.CreatedAt)
	assign(dest[8], j.UpdatedAt)
	return nil
}

func (r *jobListRows) Err() error { return nil }

func (r *jobListRows) Close() {}

type ledgerRows struct {
	testRowsBase
	entries []fakeEntry
	idx     int
}

func (r *ledgerRows) Next() bool {
	if r.idx >= len(r.entries) {
		return false
	}
	r.idx++
	return true
}

func (r *ledgerRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.entries) {
		return pgx.ErrNoRows
	}
	e := r.entries[r.idx-1]
	assign(dest[0], fmt.Sprintf("entry-%d", r.idx))
	assign(dest[1], e.amount)
	assign(dest[2], e.reason)
	assign(dest[3], e.balanceAfter)
	assign(dest[4], e.eventKey)
	assign(dest[5], []byte(`{}`))
	assign(dest[6], time.Now())
	return nil
}

func (r *ledgerRows) Err() error { return nil }

func (r *ledgerRows) Close() {}

// assign moves a fake column value into whatever destination type the handler
// scans with.
func assign(dest, val any) {
	switch d := dest.(type) {
	case *string:
		switch v := val.(type) {
		case string:
			*d = v
		case domain.JobType:
			*d = string(v)
		case domain.JobStatus:
			*d = string(v)
		}
	case *int64:
		if v, ok := val.(int64); ok {
			*d = v
		}
	case *int:
		if v, ok := val.(int); ok {
			*d = v
		}
	case **int64:
		if v, ok := val.(*int64); ok {
			*d = v
		}
	case **string:
		if v, ok := val.(*string); ok {
			*d = v
		}
	case *[]byte:
		if v, ok := val.([]byte); ok {
			*d = append([]byte(nil), v...)
		}
	case *json.RawMessage:
		if v, ok := val.([]byte); ok {
			*d = append(json.RawMessage(nil), v...)
		}
	case *time.Time:
		if v, ok := val.(time.Time); ok {
			*d = v
		}
	case *domain.JobType:
		if v, ok := val.(domain.JobType); ok {
			*d = v
		}
	case *domain.JobStatus:
		if v, ok := val.(domain.JobStatus); ok {
			*d = v
		}
	case *any:
		*d = val
	}
}

func newTestApp(db *fakeDB) *App {
	logger := zerolog.Nop()
	svc := credits.NewService(db, logger)
	return &App{
		SQL:     db,
		Logger:  logger,
		Config:  &infra.Config{CreditPackCredits: 100, CreditPriceUSDCents: 100, HeygenCostUSDCentsPerCredit: 50},
		Credits: svc,
		Recon: &reconcile.Reconciler{
			SQL:                         db,
			Credits:                     svc,
			Logger:                      logger,
			CreditPriceUSDCents:         100,
			HeygenCostUSDCentsPerCredit: 50,
		},
	}
}
