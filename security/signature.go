package security

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"regexp"
	"strings"
)

// Known webhook signature conventions, tried in order. The first structural
// match wins; there is no fallback to a later pattern once one matches.
type signatureFormat struct {
	name    string
	pattern *regexp.Regexp
	newHash func() hash.Hash
	extract func(header string, groups []string) string
}

var signatureFormats = []signatureFormat{
	{
		name:    "github",
		pattern: regexp.MustCompile(`^sha256=([a-f0-9]{64})$`),
		newHash: sha256.New,
	},
	{
		name:    "stripe",
		pattern: regexp.MustCompile(`^v1,t=\d+,v1=([a-f0-9]{64})$`),
		newHash: sha256.New,
		extract: func(header string, _ []string) string {
			_, digest, found := strings.Cut(header, "v1=")
			if !found {
				return ""
			}
			return digest
		},
	},
	{
		name:    "slack",
		pattern: regexp.MustCompile(`^v0=([a-f0-9]{64})$`),
		newHash: sha256.New,
	},
	{
		name:    "generic_sha256",
		pattern: regexp.MustCompile(`^([a-f0-9]{64})$`),
		newHash: sha256.New,
	},
	{
		name:    "generic_sha1",
		pattern: regexp.MustCompile(`^sha1=([a-f0-9]{40})$`),
		newHash: sha1.New,
	},
}

// ValidationResult reports the outcome of inbound signature validation.
// FormatDetected is empty when no known convention matched.
type ValidationResult struct {
	Valid          bool   `json:"valid"`
	FormatDetected string `json:"format_detected,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ValidateSignature checks a webhook payload against its signature header.
// A missing secret or header is an immediate failure; no HMAC is computed.
// Digest comparison is constant time.
func ValidateSignature(payload []byte, signatureHeader, secret string) ValidationResult {
	if secret == "" || signatureHeader == "" {
		return ValidationResult{Valid: false, Error: "missing secret or signature header"}
	}

	for _, format := range signatureFormats {
		groups := format.pattern.FindStringSubmatch(signatureHeader)
		if groups == nil {
			continue
		}

		provided := groups[1]
		if format.extract != nil {
			provided = format.extract(signatureHeader, groups)
			if provided == "" {
				continue
			}
		}

		mac := hmac.New(format.newHash, []byte(secret))
		mac.Write(payload)
		expected := hex.EncodeToString(mac.Sum(nil))

		result := ValidationResult{
			FormatDetected: format.name,
			Valid:          hmac.Equal([]byte(expected), []byte(provided)),
		}
		if !result.Valid {
			result.Error = "signature mismatch"
		}
		return result
	}

	return ValidationResult{Valid: false, Error: "unrecognized signature format"}
}

// SignPayload computes the outbound delivery signature: HMAC-SHA256 over the
// exact serialized payload bytes, hex encoded. Receivers validate it under
// the bare-hex or "sha256=" convention.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
