package extractor

import (
	"github.com/abadojack/whatlanggo"
)

// UnknownLanguage is reported when detection is not possible.
const UnknownLanguage = "unknown"

const minLanguageSample = 20

// DetectLanguage returns the ISO 639-1 code of text, or UnknownLanguage.
// It never fails.
func DetectLanguage(text string) (lang string) {
	defer func() {
		if recover() != nil {
			lang = UnknownLanguage
		}
	}()

	if len([]rune(text)) < minLanguageSample {
		return UnknownLanguage
	}

	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return UnknownLanguage
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return UnknownLanguage
	}
	return code
}
