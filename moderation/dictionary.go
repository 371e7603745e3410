package moderation

import (
	"bufio"
	"bytes"
	"campus-relay/errors"
	"embed"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Censored ships one dictionary per language, named after its ISO code.
//
//go:embed censored/*.txt
var Censored embed.FS

type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionary merges every .txt file of dir into one sorted word list.
// Lines are trimmed and blank lines skipped.
func LoadDictionary(fsys fs.FS, dir string) (Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Dictionary{}, err
	}

	var dictionary Dictionary
	for _, entry := range entries {
		lang, ok := strings.CutSuffix(entry.Name(), ".txt")
		if entry.IsDir() || !ok {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return Dictionary{}, err
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if word := strings.TrimSpace(scanner.Text()); word != "" {
				dictionary.Words = append(dictionary.Words, word)
			}
		}
		if err = scanner.Err(); err != nil {
			return Dictionary{}, err
		}
		dictionary.Languages = append(dictionary.Languages, lang)
	}

	if len(dictionary.Words) == 0 {
		return Dictionary{}, errors.ErrEmptyWords
	}
	dictionary.Words = lo.Uniq(dictionary.Words)
	slices.Sort(dictionary.Words)
	return dictionary, nil
}
