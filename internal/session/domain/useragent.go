package domain

import "strings"

// DeviceInfo is the browser/OS metadata sniffed from a User-Agent header.
// All fields may be empty; unknown agents are stored without metadata.
type DeviceInfo struct {
	Browser   string
	OS        string
	OSVersion string
}

// ParseUserAgent extracts coarse device metadata from a User-Agent string.
// This is intentionally a small sniffer, not a full UA parser: the subsystem
// only surfaces the metadata on session listings, it never branches on it.
func ParseUserAgent(ua string) DeviceInfo {
	var info DeviceInfo
	if ua == "" {
		return info
	}

	switch {
	case strings.Contains(ua, "Edg/"):
		info.Browser = "Edge"
	case strings.Contains(ua, "OPR/") || strings.Contains(ua, "Opera"):
		info.Browser = "Opera"
	case strings.Contains(ua, "Chrome/"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "Firefox/"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "Safari/"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(ua, "Windows NT"):
		info.OS = "Windows"
		info.OSVersion = versionAfter(ua, "Windows NT ")
	case strings.Contains(ua, "Android"):
		info.OS = "Android"
		info.OSVersion = versionAfter(ua, "Android ")
	case strings.Contains(ua, "iPhone OS") || strings.Contains(ua, "iPad"):
		info.OS = "iOS"
		info.OSVersion = strings.ReplaceAll(versionAfter(ua, "OS "), "_", ".")
	case strings.Contains(ua, "Mac OS X"):
		info.OS = "macOS"
		info.OSVersion = strings.ReplaceAll(versionAfter(ua, "Mac OS X "), "_", ".")
	case strings.Contains(ua, "Linux"):
		info.OS = "Linux"
	}

	return info
}

func versionAfter(ua, marker string) string {
	i := strings.Index(ua, marker)
	if i < 0 {
		return ""
	}
	rest := ua[i+len(marker):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return r != '.' && r != '_' && (r < '0' || r > '9')
	})
	if end < 0 {
		return rest
	}
	return rest[:end]
}
