package auth

import (
	"net/url"
	"strings"
)

// IsLocalPath reports whether path is safe to redirect to: an absolute
// path on this host, never another origin.
func IsLocalPath(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}

	// Browsers drop tabs and newlines from URLs, so "/\t/evil.com" becomes
	// protocol-relative once they do.
	if strings.IndexFunc(path, isControl) >= 0 {
		return false
	}

	// Protocol-relative URLs (//evil.com)
	if strings.HasPrefix(path, "//") {
		return false
	}

	// Browsers treat "\" like "/", so "/\evil.com" is protocol-relative too
	if strings.Contains(path, "\\") || strings.Contains(path, "://") {
		return false
	}

	u, err := url.Parse(path)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// SafeRedirectPath returns path when it is local and fallback otherwise.
func SafeRedirectPath(path, fallback string) string {
	if IsLocalPath(path) {
		return path
	}
	return fallback
}
