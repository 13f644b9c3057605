package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedCatalogs(t *testing.T) {
	m, err := Load("en")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"en", "ru"}, m.Languages())
	assert.Equal(t, "Not enough coins.", m.Translator("en").T("errors.E600"))
	assert.Equal(t, "Недостаточно монет.", m.Translator("ru").T("errors.E600"))
}

func TestTranslator_Fallbacks(t *testing.T) {
	fsys := fstest.MapFS{
		"l/en.yaml": {Data: []byte("en:\n  errors:\n    E600: Not enough coins.\n    E700: Character not found.\n")},
		"l/ru.yml":  {Data: []byte("ru:\n  errors:\n    E600: Недостаточно монет.\n")},
		"l/notes":   {Data: []byte("ignored")},
	}
	m, err := LoadFS(fsys, "l", "en")
	require.NoError(t, err)

	ru := m.Translator("ru-RU")
	assert.Equal(t, "ru", ru.Lang())
	assert.Equal(t, "Character not found.", ru.T("errors.E700"))
	assert.Equal(t, "errors.E999", ru.T("errors.E999"))

	_, ok := ru.Lookup("errors.E999")
	assert.False(t, ok)

	assert.Equal(t, "en", m.Translator("de").Lang())
}

func TestNegotiate(t *testing.T) {
	m, err := Load("en")
	require.NoError(t, err)

	tests := map[string]string{
		"":                          "en",
		"ru-RU,ru;q=0.9,en;q=0.8":   "ru",
		"de-DE,en-GB;q=0.7":         "en",
		"fr":                        "en",
		"not a language header;;;=": "en",
	}
	for header, want := range tests {
		assert.Equal(t, want, m.Negotiate(header).Lang(), "header %q", header)
	}
}

func TestLoadFS_Errors(t *testing.T) {
	_, err := LoadFS(fstest.MapFS{"l/readme.txt": {Data: []byte("x")}}, "l", "en")
	assert.Error(t, err)

	_, err = LoadFS(fstest.MapFS{"l/ru.yaml": {Data: []byte("ru:\n  a: b\n")}}, "l", "en")
	assert.ErrorContains(t, err, "default language")

	var nilManager *Manager
	assert.Equal(t, "key", nilManager.Translator("en").T("key"))
}
