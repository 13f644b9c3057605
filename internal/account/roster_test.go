package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var playerColumns = []string{"name", "deletion"}

func TestGetAccountPlayers_Empty(t *testing.T) {
	f := newFixture(t, ByID(testAccountID))
	f.load(t, 0, 0)
	f.db.ExpectQuery(selectPlayers).WithArgs(int64(testAccountID)).WillReturnRows(sqlmock.NewRows(playerColumns))

	players, err := f.acc.GetAccountPlayers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, players)
	assert.Empty(t, players)
}

func TestGetAccountPlayers_ReturnsRowsInOrder(t *testing.T) {
	f := newFixture(t, ByID(testAccountID))
	f.load(t, 0, 0)

	deletion := int64(1710000000)
	f.db.ExpectQuery(selectPlayers).WithArgs(int64(testAccountID)).WillReturnRows(
		sqlmock.NewRows(playerColumns).
			AddRow("Aldor", int64(0)).
			AddRow("Mirela", deletion),
	)

	players, err := f.acc.GetAccountPlayers(context.Background())
	require.NoError(t, err)
	require.Len(t, players, 2)

	assert.Equal(t, "Aldor", players[0].Name)
	assert.False(t, players[0].ScheduledForDeletion())
	assert.Equal(t, "Mirela", players[1].Name)
	assert.True(t, players[1].ScheduledForDeletion())
	assert.Equal(t, time.Unix(deletion, 0).UTC(), players[1].Deletion)
}

func TestGetAccountPlayers_QueryFailure(t *testing.T) {
	f := newFixture(t, ByID(testAccountID))
	f.load(t, 0, 0)
	f.db.ExpectQuery(selectPlayers).WithArgs(int64(testAccountID)).WillReturnError(errors.New("relation does not exist"))

	players, err := f.acc.GetAccountPlayers(context.Background())
	assert.ErrorIs(t, err, ErrPlayersLoad)
	assert.Nil(t, players)
}

func TestGetAccountPlayers_RequiresLoadedAccount(t *testing.T) {
	f := newFixture(t, Unresolved)

	_, err := f.acc.GetAccountPlayers(context.Background())
	assert.ErrorIs(t, err, ErrInvalidID)

	acc := New(Unresolved, WithLogger(testLogger()))
	_, err = acc.GetAccountPlayers(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestGetAccountPlayer(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		f := newFixture(t, ByID(testAccountID))
		f.load(t, 0, 0)
		f.db.ExpectQuery(selectPlayer).WithArgs(int64(testAccountID), "Aldor").
			WillReturnRows(sqlmock.NewRows(playerColumns).AddRow("Aldor", int64(0)))

		player, err := f.acc.GetAccountPlayer(ctx, "Aldor")
		require.NoError(t, err)
		assert.Equal(t, Player{Name: "Aldor"}, player)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t, ByID(testAccountID))
		f.load(t, 0, 0)
		f.db.ExpectQuery(selectPlayer).WithArgs(int64(testAccountID), "Nobody").
			WillReturnRows(sqlmock.NewRows(playerColumns))

		_, err := f.acc.GetAccountPlayer(ctx, "Nobody")
		assert.ErrorIs(t, err, ErrPlayerNotFound)
	})

	t.Run("ambiguous", func(t *testing.T) {
		f := newFixture(t, ByID(testAccountID))
		f.load(t, 0, 0)
		f.db.ExpectQuery(selectPlayer).WithArgs(int64(testAccountID), "Twin").
			WillReturnRows(sqlmock.NewRows(playerColumns).AddRow("Twin", int64(0)).AddRow("Twin", int64(0)))

		_, err := f.acc.GetAccountPlayer(ctx, "Twin")
		assert.ErrorIs(t, err, ErrDatabase)
	})

	t.Run("query failure", func(t *testing.T) {
		f := newFixture(t, ByID(testAccountID))
		f.load(t, 0, 0)
		f.db.ExpectQuery(selectPlayer).WithArgs(int64(testAccountID), "Aldor").WillReturnError(errors.New("closed"))

		_, err := f.acc.GetAccountPlayer(ctx, "Aldor")
		assert.ErrorIs(t, err, ErrDatabase)
	})
}
