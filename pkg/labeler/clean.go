package labeler

import (
	"regexp"
	"strings"
)

const maxNameRunes = 50

var (
	thinkRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)
	tagRegex   = regexp.MustCompile(`<[^>]*>`)
	spaceRegex = regexp.MustCompile(`\s+`)

	namePrefixes = []string{
		"Folder name:", "Folder:", "Name:", "Category:", "Label:", "Title:", "Topic:",
	}
)

// Clean turns a raw model answer into something usable as a folder name.
// It returns "" when nothing usable is left.
func Clean(response string) string {
	cleaned := thinkRegex.ReplaceAllString(response, "")
	cleaned = tagRegex.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if i := strings.IndexByte(cleaned, '\n'); i >= 0 {
		cleaned = cleaned[:i]
	}

	cleaned = strings.NewReplacer(`"`, "", "`", "", "*", "", "#", "").Replace(cleaned)
	cleaned = strings.TrimSpace(cleaned)

	for _, prefix := range namePrefixes {
		if strings.HasPrefix(strings.ToLower(cleaned), strings.ToLower(prefix)) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			break
		}
	}

	cleaned = strings.Trim(cleaned, "'")
	cleaned = strings.NewReplacer("/", "-", `\`, "-", ":", " ").Replace(cleaned)
	cleaned = spaceRegex.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimRight(strings.TrimSpace(cleaned), ".!?;,")
	// Keep names safe as zip path components.
	cleaned = strings.Trim(cleaned, ". ")

	if runes := []rune(cleaned); len(runes) > maxNameRunes {
		cleaned = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	return cleaned
}
