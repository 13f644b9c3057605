package account

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"time"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/pkg/metrics"
)

// The account name is the email column.
const (
	selectAccountByID = `
		SELECT id, email, password, premium_days, premium_last_day, type, coins, tournament_coins
		FROM accounts
		WHERE id = $1
		LIMIT 2
	`

	selectAccountByName = `
		SELECT id, email, password, premium_days, premium_last_day, type, coins, tournament_coins
		FROM accounts
		WHERE email = $1
		LIMIT 2
	`

	updateAccount = `
		UPDATE accounts
		SET email = $1, password = $2, premium_days = $3, premium_last_day = $4,
			type = $5, coins = $6, tournament_coins = $7
		WHERE id = $8
	`

	selectBalances = `
		SELECT coins, tournament_coins
		FROM accounts
		WHERE id = $1
	`
)

// Load resolves the Ref the account was built with.
func (a *Account) Load(ctx context.Context) error {
	if id, ok := a.ref.ID(); ok {
		return a.LoadByID(ctx, id)
	}
	if name, ok := a.ref.Name(); ok {
		return a.LoadByName(ctx, name)
	}
	return fail(apperrors.KindInvalidID, "account reference is unresolved")
}

// LoadByID replaces the in-memory state with the row whose id is id.
func (a *Account) LoadByID(ctx context.Context, id uint32) error {
	if id == 0 {
		return fail(apperrors.KindInvalidID, "account id is zero")
	}
	return a.load(ctx, "id", selectAccountByID, int64(id))
}

// LoadByName replaces the in-memory state with the row whose name is name.
func (a *Account) LoadByName(ctx context.Context, name string) error {
	if name == "" {
		return fail(apperrors.KindInvalidID, "account name is empty")
	}
	return a.load(ctx, "name", selectAccountByName, name)
}

func (a *Account) load(ctx context.Context, lookup, query string, arg any) error {
	if a.db == nil {
		return fail(apperrors.KindNotInitialized, "no query executor")
	}

	rec, err := a.queryAccount(ctx, query, arg)
	metrics.RecordAccountLoad(lookup, apperrors.KindOf(err).String())
	if err != nil {
		a.log.Warn("account load failed",
			slog.String("lookup", lookup),
			slog.String("kind", apperrors.KindOf(err).String()),
			slog.Any("error", err),
		)
		return err
	}

	a.rec = rec
	a.ref = ByID(rec.id)
	a.log.Debug("account loaded", slog.Uint64("account_id", uint64(rec.id)), slog.String("lookup", lookup))

	return nil
}

// queryAccount validates the single matching row into a fresh record so a
// failed load leaves the current state untouched.
func (a *Account) queryAccount(ctx context.Context, query string, arg any) (record, error) {
	rows, err := a.db.QueryContext(ctx, query, arg)
	if err != nil {
		return record{}, failWith(apperrors.KindDatabase, err, "query account")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return record{}, failWith(apperrors.KindDatabase, err, "read account row")
		}
		return record{}, fail(apperrors.KindInvalidID, "account not found")
	}

	var (
		id, premiumDays, lastDay, accountType, coins, tournamentCoins int64
		email, password                                               sql.NullString
	)
	if err := rows.Scan(&id, &email, &password, &premiumDays, &lastDay, &accountType, &coins, &tournamentCoins); err != nil {
		return record{}, failWith(apperrors.KindDatabase, err, "scan account row")
	}

	if rows.Next() {
		return record{}, fail(apperrors.KindDatabase, "account lookup matched more than one row")
	}
	if err := rows.Err(); err != nil {
		return record{}, failWith(apperrors.KindDatabase, err, "read account row")
	}

	switch {
	case id <= 0 || id > math.MaxUint32:
		return record{}, fail(apperrors.KindInvalidID, "stored account id out of range")
	case !email.Valid || email.String == "":
		return record{}, fail(apperrors.KindInvalidEmail, "stored email is empty")
	case !password.Valid || password.String == "":
		return record{}, fail(apperrors.KindInvalidPassword, "stored password is empty")
	case premiumDays < 0 || premiumDays > math.MaxUint32:
		return record{}, fail(apperrors.KindInvalidLastDay, "stored premium days out of range")
	case lastDay < 0:
		return record{}, fail(apperrors.KindInvalidLastDay, "stored premium last day is negative")
	case !Type(clampType(accountType)).Valid():
		return record{}, fail(apperrors.KindInvalidAccountType, "stored account type out of range")
	case !fitsUint32(coins) || !fitsUint32(tournamentCoins):
		return record{}, fail(apperrors.KindCoinsQuery, "stored coin balance out of range")
	}

	return record{
		id:              uint32(id),
		email:           email.String,
		password:        password.String,
		premiumDays:     uint32(premiumDays),
		premiumLastDay:  fromUnix(lastDay),
		accountType:     Type(accountType),
		coins:           uint32(coins),
		tournamentCoins: uint32(tournamentCoins),
	}, nil
}

// Save writes every persisted field of a loaded account.
func (a *Account) Save(ctx context.Context) error {
	if a.db == nil {
		return fail(apperrors.KindNotInitialized, "no query executor")
	}
	if a.rec.id == 0 {
		return fail(apperrors.KindInvalidID, "account is not loaded")
	}

	res, err := a.db.ExecContext(ctx, updateAccount,
		a.rec.email,
		a.rec.password,
		int64(a.rec.premiumDays),
		toUnix(a.rec.premiumLastDay),
		int64(a.rec.accountType),
		int64(a.rec.coins),
		int64(a.rec.tournamentCoins),
		int64(a.rec.id),
	)
	if err != nil {
		a.log.Error("account save failed", slog.Uint64("account_id", uint64(a.rec.id)), slog.Any("error", err))
		if errors.Is(err, apperrors.ErrCircuitOpen) {
			return failWith(apperrors.KindDatabase, err, "update account")
		}
		return failWith(apperrors.KindDatabase, mark(ErrSaveOutcomeUnknown, err), "update account")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return failWith(apperrors.KindDatabase, mark(ErrSaveOutcomeUnknown, err), "update account rows affected")
	}
	if affected == 0 {
		return fail(apperrors.KindDatabase, "update account matched no row")
	}

	return nil
}

// RefreshCoins re-reads both balances from the store, discarding any
// in-memory value.
func (a *Account) RefreshCoins(ctx context.Context) error {
	if a.db == nil {
		return fail(apperrors.KindNotInitialized, "no query executor")
	}
	if a.rec.id == 0 {
		return fail(apperrors.KindInvalidID, "account is not loaded")
	}

	rows, err := a.db.QueryContext(ctx, selectBalances, int64(a.rec.id))
	if err != nil {
		return failWith(apperrors.KindCoinsQuery, err, "query balances")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return failWith(apperrors.KindCoinsQuery, err, "read balances")
		}
		return fail(apperrors.KindInvalidID, "account not found")
	}

	var coins, tournamentCoins int64
	if err := rows.Scan(&coins, &tournamentCoins); err != nil {
		return failWith(apperrors.KindCoinsQuery, err, "scan balances")
	}
	if !fitsUint32(coins) || !fitsUint32(tournamentCoins) {
		return fail(apperrors.KindCoinsQuery, "stored coin balance out of range")
	}

	a.rec.coins = uint32(coins)
	a.rec.tournamentCoins = uint32(tournamentCoins)

	return nil
}

func fitsUint32(v int64) bool {
	return v >= 0 && v <= math.MaxUint32
}

// clampType maps anything outside the uint8 range to an invalid Type.
func clampType(v int64) uint8 {
	if v < 0 || v > math.MaxUint8 {
		return 0
	}
	return uint8(v)
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
