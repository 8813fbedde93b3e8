package util

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// HashID computes a deterministic content-addressed identifier: the md5 hex
// digest of content with an optional prefix. The same content always maps to
// the same id, which makes chunk and entity-index upserts idempotent.
func HashID(content string, prefix string) string {
	sum := md5.Sum([]byte(content))
	return prefix + hex.EncodeToString(sum[:])
}

// NewCorrelationID returns a random id used to correlate queued jobs and
// HTTP requests in logs.
func NewCorrelationID() (string, error) {
	return gonanoid.New()
}

// SanitizeStoredText strips invalid UTF-8 and NUL bytes before a value is
// written to Postgres, which rejects both in text columns.
func SanitizeStoredText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}
