// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package logging

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// sensitiveQueryParams are stripped from URLs before logging.
var sensitiveQueryParams = []string{"apikey", "api_key", "token", "access_token", "vsn_token"}

// SanitizeSecret masks a credential for logging, keeping the first and
// last four characters of long values.
//
//	SanitizeSecret("sk_live_1234567890abcd") // "sk_l...abcd"
func SanitizeSecret(secret string) string {
	switch n := len(secret); {
	case n == 0:
		return ""
	case n <= 12:
		return "[REDACTED]"
	default:
		return secret[:4] + "..." + secret[n-4:]
	}
}

// SanitizeURL removes userinfo and credential query parameters from a URL.
// Unparseable input is fully redacted.
func SanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[REDACTED]"
	}
	if u.User != nil {
		u.User = url.User("REDACTED")
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			for _, s := range sensitiveQueryParams {
				if strings.EqualFold(key, s) {
					q.Set(key, "REDACTED")
				}
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// SanitizeName reduces a participant display name to its first rune
// plus a masked tail capped at eight characters.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(r) + strings.Repeat("*", min(utf8.RuneCountInString(name)-1, 8))
}
