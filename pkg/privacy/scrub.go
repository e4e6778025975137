// Package privacy holds the hook applied to extracted text before it is sent
// to any remote service.
package privacy

import "github.com/xhad/docsort/internal/types"

// Identity returns text unchanged. It is the default scrubber; deployments
// that need redaction plug their own types.Scrubber into the pipeline.
func Identity(text string) string {
	return text
}

// OrIdentity returns s, or Identity when s is nil.
func OrIdentity(s types.Scrubber) types.Scrubber {
	if s == nil {
		return Identity
	}
	return s
}
