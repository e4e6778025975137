package extractor

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

var errBinary = errors.New("content is not text")

func extractPlainText(content []byte) (string, error) {
	if bytes.IndexByte(content, 0) >= 0 {
		return "", errBinary
	}
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	return sanitizeUTF8(string(content)), nil
}

// cleanText collapses runs of whitespace so the excerpt budget is spent on
// words rather than layout.
func cleanText(text string) string {
	text = sanitizeUTF8(text)
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
