package common

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	plainTextPolicy = bluemonday.StrictPolicy()
	richTextPolicy  = newRichTextPolicy()
)

func newRichTextPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// SanitizeText strips all markup from short free-text fields such as names and notes.
func SanitizeText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(plainTextPolicy.Sanitize(trimmed))
}

// SanitizeRichText keeps safe formatting tags; used for product descriptions.
func SanitizeRichText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(richTextPolicy.Sanitize(trimmed))
}

// SanitizeTextPtr applies SanitizeText to an optional field.
func SanitizeTextPtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	s := SanitizeText(*raw)
	return &s
}
