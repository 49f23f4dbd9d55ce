package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveParams are matched as case-insensitive substrings of query
// parameter names.
var sensitiveParams = []string{"key", "token", "secret", "password", "auth", "credential"}

// sanitizeURL renders u with sensitive query values and userinfo redacted.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	safe := *u
	if safe.User != nil {
		safe.User = url.User("REDACTED")
	}

	q := safe.Query()
	for name := range q {
		if isSensitiveParam(name) {
			q.Set(name, "REDACTED")
		}
	}
	safe.RawQuery = q.Encode()
	return safe.String()
}

func isSensitiveParam(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveParams {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
