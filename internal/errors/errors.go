package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Kind is the closed set of outcomes returned by account operations.
type Kind uint8

const (
	KindOK Kind = iota
	KindDatabase
	KindCoinsQuery
	KindInvalidEmail
	KindInvalidPassword
	KindInvalidAccountType
	KindInvalidID
	KindInvalidLastDay
	KindPlayersLoad
	KindNotInitialized
	KindNullReference
	KindInsufficientCoins
	KindValueOverflow
	KindPlayerNotFound
)

var kindNames = [...]string{
	KindOK:                 "ok",
	KindDatabase:           "database_failure",
	KindCoinsQuery:         "coins_query_failure",
	KindInvalidEmail:       "invalid_email",
	KindInvalidPassword:    "invalid_password",
	KindInvalidAccountType: "invalid_account_type",
	KindInvalidID:          "invalid_id",
	KindInvalidLastDay:     "invalid_last_day",
	KindPlayersLoad:        "players_load_failure",
	KindNotInitialized:     "not_initialized",
	KindNullReference:      "null_reference",
	KindInsufficientCoins:  "insufficient_coins",
	KindValueOverflow:      "value_overflow",
	KindPlayerNotFound:     "player_not_found",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

type kindInfo struct {
	code      string
	severity  Severity
	retryable bool
	user      string
}

var kinds = map[Kind]kindInfo{
	KindInvalidEmail:       {code: "E100", severity: SeverityLow, user: "The account e-mail is invalid."},
	KindInvalidPassword:    {code: "E101", severity: SeverityLow, user: "The account password is invalid."},
	KindInvalidAccountType: {code: "E102", severity: SeverityLow, user: "The account type is invalid."},
	KindInvalidID:          {code: "E103", severity: SeverityLow, user: "Account not found."},
	KindInvalidLastDay:     {code: "E104", severity: SeverityLow, user: "The premium period is invalid."},
	KindDatabase:           {code: "E200", severity: SeverityHigh, retryable: true, user: "Temporary problem, please try again later."},
	KindCoinsQuery:         {code: "E201", severity: SeverityHigh, retryable: true, user: "Could not read the coin balance."},
	KindPlayersLoad:        {code: "E202", severity: SeverityHigh, retryable: true, user: "Could not load the character list."},
	KindNotInitialized:     {code: "E400", severity: SeverityCritical, user: "The operation is not possible right now."},
	KindNullReference:      {code: "E401", severity: SeverityCritical, user: "The operation is not possible right now."},
	KindInsufficientCoins:  {code: "E600", severity: SeverityLow, user: "Not enough coins."},
	KindValueOverflow:      {code: "E601", severity: SeverityLow, user: "The coin balance limit was reached."},
	KindPlayerNotFound:     {code: "E700", severity: SeverityLow, user: "Character not found."},
}

type AppError struct {
	Kind        Kind
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// Is reports whether target is an AppError of the same kind, so sentinel
// values match any wrapped instance of that kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}

	return e.Kind == t.Kind
}

// New builds an AppError of the given kind.
func New(kind Kind, msg string) *AppError {
	return Wrap(kind, nil, msg)
}

// Wrap builds an AppError of the given kind that unwraps to cause.
func Wrap(kind Kind, cause error, msg string) *AppError {
	info := kinds[kind]

	message := msg
	if cause != nil {
		message = fmt.Sprintf("%s: %s", msg, cause.Error())
	}

	return &AppError{
		Kind:        kind,
		Code:        info.code,
		Message:     message,
		UserMessage: info.user,
		Severity:    info.severity,
		Retryable:   info.retryable,
		cause:       cause,
	}
}

// KindOf returns the outcome kind of err. A nil error is KindOK and a
// foreign error is treated as a database failure.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Kind
	}

	return KindDatabase
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	err := Wrap(KindDatabase, nil, fmt.Sprintf("Database error: %s", underlyingMsg))
	err.cause = cause

	return err
}
