// Package creds locates API-key credentials in the local environment,
// validates their format per-provider, and wraps accepted values in a
// redacted secret before they are synced to the backend.
package creds

import (
	"strconv"
	"strings"

	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

// RejectReason tags why a candidate key was rejected.
type RejectReason struct {
	Kind     string
	Expected string
	Actual   string
	Min, Max int
	Pattern  string
}

func (r RejectReason) String() string {
	switch r.Kind {
	case "Empty":
		return "key is empty"
	case "TooShort":
		return "key is shorter than the minimum length"
	case "TooLong":
		return "key is longer than the maximum length"
	case "InvalidPrefix":
		return "key does not start with the expected prefix"
	case "PlaceholderDetected":
		return "key looks like a placeholder value"
	case "InvalidCharacters":
		return "key contains characters outside the allowed set"
	default:
		return r.Kind
	}
}

type providerRule struct {
	prefix string
	min    int
	max    int
}

var providerRules = map[string]providerRule{
	"openai":              {prefix: "sk-", min: 20, max: 200},
	"anthropic":           {prefix: "sk-ant-", min: 40, max: 200},
	"google":              {prefix: "AI", min: 30, max: 100},
	"google_generativeai": {prefix: "AI", min: 30, max: 100},
	"mistral":             {prefix: "", min: 32, max: 64},
	"cohere":              {prefix: "", min: 30, max: 100},
}

var defaultRule = providerRule{prefix: "", min: 10, max: 500}

func ruleFor(provider string) providerRule {
	if r, ok := providerRules[strings.ToLower(provider)]; ok {
		return r
	}
	return defaultRule
}

var placeholderSubstrings = []string{
	"...",
	"your-api-key",
	"your_api_key",
	"insert",
	"<your",
	"xxx",
	"placeholder",
	"example",
	"test-key",
	"dummy",
	"fake",
	"replace",
	"put-your",
	"add-your",
	"enter-your",
}

func looksLikePlaceholder(key string) (bool, string) {
	lower := strings.ToLower(key)
	for _, pat := range placeholderSubstrings {
		if strings.Contains(lower, pat) {
			return true, pat
		}
	}
	if len(key) >= 10 && allSameChar(key) {
		return true, "all-same-character"
	}
	return false, ""
}

func allSameChar(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func hasOnlyAllowedCharacters(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

// Validate checks key against provider's format rules, returning a
// located Validation error when it is rejected. The returned error's
// Detail field carries the RejectReason so callers can branch on the
// structured reason instead of parsing Message.
func Validate(provider, key string) error {
	if key == "" {
		return errs.New(errs.FamilyValidation, "Empty", "api key is empty").
			WithDetail(RejectReason{Kind: "Empty"})
	}

	rule := ruleFor(provider)

	if rule.prefix != "" && !strings.HasPrefix(key, rule.prefix) {
		actual := prefixSample(key)
		return errs.Newf(errs.FamilyValidation, "InvalidPrefix",
			"expected prefix %q, got key starting with %q", rule.prefix, actual).
			WithDetail(RejectReason{Kind: "InvalidPrefix", Expected: rule.prefix, Actual: actual})
	}
	if len(key) < rule.min {
		return errs.Newf(errs.FamilyValidation, "TooShort",
			"key length %d is below the minimum of %d", len(key), rule.min).
			WithDetail(RejectReason{Kind: "TooShort", Min: rule.min, Actual: strconv.Itoa(len(key))})
	}
	if len(key) > rule.max {
		return errs.Newf(errs.FamilyValidation, "TooLong",
			"key length %d exceeds the maximum of %d", len(key), rule.max).
			WithDetail(RejectReason{Kind: "TooLong", Max: rule.max, Actual: strconv.Itoa(len(key))})
	}
	if isPlaceholder, pattern := looksLikePlaceholder(key); isPlaceholder {
		return errs.Newf(errs.FamilyValidation, "PlaceholderDetected",
			"key matches placeholder pattern %q", pattern).
			WithDetail(RejectReason{Kind: "PlaceholderDetected", Pattern: pattern})
	}
	if !hasOnlyAllowedCharacters(key) {
		return errs.New(errs.FamilyValidation, "InvalidCharacters",
			"key contains characters outside [A-Za-z0-9-_.:]").
			WithDetail(RejectReason{Kind: "InvalidCharacters"})
	}
	return nil
}

func prefixSample(key string) string {
	const n = 8
	if len(key) < n {
		return key
	}
	return key[:n]
}
