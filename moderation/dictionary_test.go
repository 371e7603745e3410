package moderation

import (
	"campus-relay/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadDictionary_Embedded(t *testing.T) {
	req := require.New(t)

	dictionary, err := LoadDictionary(Censored, "censored")

	req.NoError(err)
	req.ElementsMatch([]string{"en", "fr"}, dictionary.Languages)
	req.NotEmpty(dictionary.Words)
	req.IsNonDecreasing(dictionary.Words)
}

func TestLoadDictionary_Merges_Languages(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"words/en.txt":     {Data: []byte("scam\r\n  fraud \n\n")},
		"words/fr.txt":     {Data: []byte("arnaque\nscam\n")},
		"words/README.md":  {Data: []byte("not a dictionary")},
		"words/old/de.txt": {Data: []byte("betrug")},
	}

	dictionary, err := LoadDictionary(fsys, "words")

	req.NoError(err)
	req.Equal([]string{"en", "fr"}, dictionary.Languages)
	req.Equal([]string{"arnaque", "fraud", "scam"}, dictionary.Words)
}

func TestLoadDictionary_Failures(t *testing.T) {
	req := require.New(t)

	_, err := LoadDictionary(Censored, "missing")
	req.Error(err)

	_, err = LoadDictionary(fstest.MapFS{"words/en.txt": {Data: []byte("\n \n")}}, "words")
	req.ErrorIs(err, errors.ErrEmptyWords)
}
