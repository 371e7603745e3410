package moderation

import (
	"github.com/abadojack/whatlanggo"
)

// Undetermined is reported when the text is too short or too mixed to tell.
const Undetermined = "und"

// DetectLanguage returns the ISO 639-1 code of text, or Undetermined.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return Undetermined
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return Undetermined
}
