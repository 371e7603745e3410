package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	req := require.New(t)

	req.Equal("en", DetectLanguage("Hello, is the desk lamp still available? I could pick it up tomorrow after my lecture."))
	req.Equal("fr", DetectLanguage("Bonjour, est-ce que la lampe de bureau est toujours disponible ? Je peux passer demain après les cours."))
	req.Equal(Undetermined, DetectLanguage("ok"))
	req.Equal(Undetermined, DetectLanguage(""))
}
