package domain

import "testing"

func TestParseUserAgent(t *testing.T) {
	cases := []struct {
		name string
		ua   string
		want DeviceInfo
	}{
		{
			name: "chrome on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: DeviceInfo{Browser: "Chrome", OS: "Windows", OSVersion: "10.0"},
		},
		{
			name: "firefox on linux",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: DeviceInfo{Browser: "Firefox", OS: "Linux"},
		},
		{
			name: "safari on mac",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
			want: DeviceInfo{Browser: "Safari", OS: "macOS", OSVersion: "10.15.7"},
		},
		{
			name: "edge on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			want: DeviceInfo{Browser: "Edge", OS: "Windows", OSVersion: "10.0"},
		},
		{
			name: "android chrome",
			ua:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			want: DeviceInfo{Browser: "Chrome", OS: "Android", OSVersion: "14"},
		},
		{
			name: "empty",
			ua:   "",
			want: DeviceInfo{},
		},
		{
			name: "unknown agent",
			ua:   "curl/8.4.0",
			want: DeviceInfo{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseUserAgent(tc.ua)
			if got != tc.want {
				t.Errorf("ParseUserAgent(%q) = %+v, want %+v", tc.ua, got, tc.want)
			}
		})
	}
}
