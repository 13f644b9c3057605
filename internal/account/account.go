// Package account holds the player account entity: its persisted fields,
// the coin ledger and the read-only view of its characters.
//
// An Account is not safe for concurrent use. Callers that share one across
// goroutines serialize access themselves (see internal/ledger).
package account

import (
	"log/slog"
	"time"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/internal/persistence"
)

// record is the persisted state of an account. Loads fill a fresh record
// and swap it in whole.
type record struct {
	id              uint32
	email           string
	password        string
	premiumDays     uint32
	premiumLastDay  time.Time
	accountType     Type
	coins           uint32
	tournamentCoins uint32
}

// Account is one player account bound to a store and a task queue.
type Account struct {
	db    persistence.QueryExecutor
	tasks persistence.TaskSubmitter
	log   *slog.Logger
	now   func() time.Time

	ref Ref
	rec record
}

// Option configures an Account at construction.
type Option func(*Account)

func WithQueryExecutor(db persistence.QueryExecutor) Option {
	return func(a *Account) { a.db = db }
}

func WithTaskSubmitter(tasks persistence.TaskSubmitter) Option {
	return func(a *Account) { a.tasks = tasks }
}

func WithLogger(log *slog.Logger) Option {
	return func(a *Account) {
		if log != nil {
			a.log = log
		}
	}
}

// New returns an unloaded account that will resolve ref on Load.
func New(ref Ref, opts ...Option) *Account {
	a := &Account{
		log: slog.Default(),
		now: time.Now,
		ref: ref,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(slog.String("component", "account"))

	return a
}

// SetQueryExecutor replaces the store handle.
func (a *Account) SetQueryExecutor(db persistence.QueryExecutor) error {
	if db == nil {
		return fail(apperrors.KindNullReference, "query executor is nil")
	}
	a.db = db
	return nil
}

// SetTaskSubmitter replaces the queue handle used for transaction records.
func (a *Account) SetTaskSubmitter(tasks persistence.TaskSubmitter) error {
	if tasks == nil {
		return fail(apperrors.KindNullReference, "task submitter is nil")
	}
	a.tasks = tasks
	return nil
}

func (a *Account) Ref() Ref { return a.ref }

// ID is zero until a load succeeds.
func (a *Account) ID() uint32 { return a.rec.id }

func (a *Account) Email() string { return a.rec.email }

func (a *Account) Password() string { return a.rec.password }

func (a *Account) PremiumRemainingDays() uint32 { return a.rec.premiumDays }

func (a *Account) PremiumLastDay() time.Time { return a.rec.premiumLastDay }

func (a *Account) Type() Type { return a.rec.accountType }

// Loaded reports whether the account holds a row from the store.
func (a *Account) Loaded() bool { return a.rec.id != 0 }

func (a *Account) SetEmail(email string) error {
	if email == "" {
		return fail(apperrors.KindInvalidEmail, "email is empty")
	}
	a.rec.email = email
	return nil
}

// SetPassword stores the credential as given; hashing is the caller's job.
func (a *Account) SetPassword(password string) error {
	if password == "" {
		return fail(apperrors.KindInvalidPassword, "password is empty")
	}
	a.rec.password = password
	return nil
}

func (a *Account) SetPremiumRemainingDays(days uint32) {
	a.rec.premiumDays = days
}

// SetPremiumLastDay accepts the zero time as "no premium period".
func (a *Account) SetPremiumLastDay(day time.Time) error {
	if !day.IsZero() && day.Before(time.Unix(0, 0)) {
		return fail(apperrors.KindInvalidLastDay, "premium last day is before the unix epoch")
	}
	a.rec.premiumLastDay = day
	return nil
}

func (a *Account) SetType(t Type) error {
	if !t.Valid() {
		return fail(apperrors.KindInvalidAccountType, "unknown account type "+t.String())
	}
	a.rec.accountType = t
	return nil
}
