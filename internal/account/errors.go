package account

import (
	"errors"
	"fmt"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
)

// Sentinels for errors.Is. Every error returned by this package is an
// *errors.AppError of one of these kinds.
var (
	ErrDatabase           = apperrors.New(apperrors.KindDatabase, "database failure")
	ErrCoinsQuery         = apperrors.New(apperrors.KindCoinsQuery, "coins query failure")
	ErrInvalidEmail       = apperrors.New(apperrors.KindInvalidEmail, "invalid email")
	ErrInvalidPassword    = apperrors.New(apperrors.KindInvalidPassword, "invalid password")
	ErrInvalidAccountType = apperrors.New(apperrors.KindInvalidAccountType, "invalid account type")
	ErrInvalidID          = apperrors.New(apperrors.KindInvalidID, "invalid account id")
	ErrInvalidLastDay     = apperrors.New(apperrors.KindInvalidLastDay, "invalid premium last day")
	ErrPlayersLoad        = apperrors.New(apperrors.KindPlayersLoad, "players load failure")
	ErrNotInitialized     = apperrors.New(apperrors.KindNotInitialized, "account not initialized")
	ErrNullReference      = apperrors.New(apperrors.KindNullReference, "null reference")
	ErrInsufficientCoins  = apperrors.New(apperrors.KindInsufficientCoins, "insufficient coins")
	ErrValueOverflow      = apperrors.New(apperrors.KindValueOverflow, "coin balance overflow")
	ErrPlayerNotFound     = apperrors.New(apperrors.KindPlayerNotFound, "player not found")
)

// Markers wrapped into DatabaseFailure errors that happen once the balance
// UPDATE has reached the store. Callers replaying requests must not apply the
// same mutation again when they see either of them.
var (
	// ErrAuditNotRecorded means the balance is durable but the audit record
	// was not submitted.
	ErrAuditNotRecorded = errors.New("account: balance saved without audit record")
	// ErrSaveOutcomeUnknown means the UPDATE was sent and may have committed.
	ErrSaveOutcomeUnknown = errors.New("account: balance write outcome unknown")
)

func fail(kind apperrors.Kind, msg string) error {
	return apperrors.New(kind, msg)
}

func failWith(kind apperrors.Kind, cause error, msg string) error {
	return apperrors.Wrap(kind, cause, msg)
}

func mark(marker, cause error) error {
	return fmt.Errorf("%w: %w", marker, cause)
}
