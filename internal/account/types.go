package account

import (
	"fmt"
	"time"
)

// Type is the account's privilege level.
type Type uint8

const (
	TypeNormal Type = iota + 1
	TypeTutor
	TypeSeniorTutor
	TypeGameMaster
	TypeGod
)

// Valid reports whether t is one of the known account types.
func (t Type) Valid() bool {
	return t >= TypeNormal && t <= TypeGod
}

func (t Type) String() string {
	switch t {
	case TypeNormal:
		return "normal"
	case TypeTutor:
		return "tutor"
	case TypeSeniorTutor:
		return "senior_tutor"
	case TypeGameMaster:
		return "game_master"
	case TypeGod:
		return "god"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// CoinType selects one of the two independent balances.
type CoinType uint8

const (
	CoinTypeCoin CoinType = iota + 1
	CoinTypeTournament
)

func (c CoinType) String() string {
	switch c {
	case CoinTypeCoin:
		return "coin"
	case CoinTypeTournament:
		return "tournament"
	default:
		return fmt.Sprintf("coin_type(%d)", uint8(c))
	}
}

// TransactionType is the direction of a coin movement.
type TransactionType uint8

const (
	TransactionAdd TransactionType = iota + 1
	TransactionRemove
)

func (t TransactionType) String() string {
	switch t {
	case TransactionAdd:
		return "add"
	case TransactionRemove:
		return "remove"
	default:
		return fmt.Sprintf("transaction(%d)", uint8(t))
	}
}

// Player is a character listed under an account.
type Player struct {
	Name     string
	Deletion time.Time
}

// ScheduledForDeletion reports whether the character has a deletion date.
func (p Player) ScheduledForDeletion() bool {
	return !p.Deletion.IsZero()
}

type refKind uint8

const (
	refUnresolved refKind = iota
	refByID
	refByName
)

// Ref identifies the account a Load should fetch: by id, by name, or not at all.
type Ref struct {
	kind refKind
	id   uint32
	name string
}

// Unresolved is the zero Ref.
var Unresolved = Ref{}

// ByID refers to an account by its numeric id. Zero yields Unresolved.
func ByID(id uint32) Ref {
	if id == 0 {
		return Unresolved
	}
	return Ref{kind: refByID, id: id}
}

// ByName refers to an account by its login name. Empty yields Unresolved.
func ByName(name string) Ref {
	if name == "" {
		return Unresolved
	}
	return Ref{kind: refByName, name: name}
}

// ID returns the referenced id when the Ref is by id.
func (r Ref) ID() (uint32, bool) {
	return r.id, r.kind == refByID
}

// Name returns the referenced name when the Ref is by name.
func (r Ref) Name() (string, bool) {
	return r.name, r.kind == refByName
}

// Resolved reports whether the Ref names an account.
func (r Ref) Resolved() bool {
	return r.kind != refUnresolved
}

func (r Ref) String() string {
	switch r.kind {
	case refByID:
		return fmt.Sprintf("id:%d", r.id)
	case refByName:
		return "name:" + r.name
	default:
		return "unresolved"
	}
}
