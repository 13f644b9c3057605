package account

import (
	"context"
	"log/slog"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
)

const (
	selectPlayer = `
		SELECT name, deletion
		FROM players
		WHERE account_id = $1 AND name = $2
		LIMIT 2
	`

	selectPlayers = `
		SELECT name, deletion
		FROM players
		WHERE account_id = $1
		ORDER BY name
	`
)

// GetAccountPlayer returns the named character of this account.
func (a *Account) GetAccountPlayer(ctx context.Context, name string) (Player, error) {
	if err := a.readyToQuery(); err != nil {
		return Player{}, err
	}
	if name == "" {
		return Player{}, fail(apperrors.KindPlayerNotFound, "player name is empty")
	}

	rows, err := a.db.QueryContext(ctx, selectPlayer, int64(a.rec.id), name)
	if err != nil {
		return Player{}, failWith(apperrors.KindDatabase, err, "query player")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Player{}, failWith(apperrors.KindDatabase, err, "read player row")
		}
		return Player{}, fail(apperrors.KindPlayerNotFound, "player "+name+" not found")
	}

	player, err := scanPlayer(rows.Scan)
	if err != nil {
		return Player{}, failWith(apperrors.KindDatabase, err, "scan player row")
	}

	if rows.Next() {
		return Player{}, fail(apperrors.KindDatabase, "player lookup matched more than one row")
	}
	if err := rows.Err(); err != nil {
		return Player{}, failWith(apperrors.KindDatabase, err, "read player row")
	}

	return player, nil
}

// GetAccountPlayers lists the account's characters ordered by name. An
// account with no characters yields an empty, non-nil slice.
func (a *Account) GetAccountPlayers(ctx context.Context) ([]Player, error) {
	if err := a.readyToQuery(); err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, selectPlayers, int64(a.rec.id))
	if err != nil {
		a.log.Warn("players query failed", slog.Uint64("account_id", uint64(a.rec.id)), slog.Any("error", err))
		return nil, failWith(apperrors.KindPlayersLoad, err, "query players")
	}
	defer rows.Close()

	players := make([]Player, 0)
	for rows.Next() {
		player, err := scanPlayer(rows.Scan)
		if err != nil {
			return nil, failWith(apperrors.KindPlayersLoad, err, "scan player row")
		}
		players = append(players, player)
	}
	if err := rows.Err(); err != nil {
		return nil, failWith(apperrors.KindPlayersLoad, err, "read player rows")
	}

	return players, nil
}

func scanPlayer(scan func(dest ...any) error) (Player, error) {
	var (
		name     string
		deletion int64
	)
	if err := scan(&name, &deletion); err != nil {
		return Player{}, err
	}

	return Player{Name: name, Deletion: fromUnix(deletion)}, nil
}

func (a *Account) readyToQuery() error {
	if a.db == nil {
		return fail(apperrors.KindNotInitialized, "no query executor")
	}
	if a.rec.id == 0 {
		return fail(apperrors.KindInvalidID, "account is not loaded")
	}
	return nil
}
