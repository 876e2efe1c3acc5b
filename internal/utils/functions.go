package utils

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
)

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// ParseRateLimit turns "2MB", "512KiB" or "100000" into bytes per second.
// An empty string means unlimited and yields 0.
func ParseRateLimit(limit string) (int64, error) {
	limit = strings.TrimSuffix(strings.TrimSpace(limit), "/s")
	if limit == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(limit)
	if err != nil {
		return 0, fmt.Errorf("invalid rate limit %q: %w", limit, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid rate limit %q: must be positive", limit)
	}
	return int64(n), nil
}

// SplitProxyAuth moves credentials embedded in a proxy URL out into separate
// values unless explicit ones were already given.
func SplitProxyAuth(proxyURL, username, password string) (string, string, string) {
	parsedProxy, err := url.Parse(proxyURL)
	if err != nil || parsedProxy.User == nil || username != "" {
		return proxyURL, username, password
	}
	username = parsedProxy.User.Username()
	if p, set := parsedProxy.User.Password(); set {
		password = p
	}
	parsedProxy.User = nil
	return parsedProxy.String(), username, password
}

func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(bytes))
}
