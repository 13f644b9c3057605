package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("add with defaults", func(t *testing.T) {
		cmd, err := parse([]string{"add", "-account", "42", "-amount", "100"}, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, "add", cmd.name)
		assert.Equal(t, uint(42), cmd.accountID)
		assert.Equal(t, uint(100), cmd.amount)
		assert.Equal(t, "coin", cmd.coin)
	})

	t.Run("show by name", func(t *testing.T) {
		cmd, err := parse([]string{"show", "-name", "player@example.com"}, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, "player@example.com", cmd.email)
	})

	cases := map[string][]string{
		"no command":          nil,
		"unknown command":     {"transfer", "-account", "1"},
		"show without target": {"show"},
		"players without id":  {"players", "-name", "x"},
		"add without amount":  {"add", "-account", "1"},
		"unknown coin":        {"remove", "-account", "1", "-amount", "1", "-coin", "gold"},
		"amount too large":    {"add", "-account", "1", "-amount", "4294967296"},
		"unknown flag":        {"show", "-account", "1", "-verbose"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parse(args, io.Discard)
			assert.Error(t, err)
		})
	}
}
