package device

import (
	"sync"
	"testing"
)

func TestID_StableAcrossCalls(t *testing.T) {
	first, err := ID()
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	if first == "" {
		t.Fatalf("expected non-empty fingerprint")
	}

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _ = ID()
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		if id != first {
			t.Fatalf("call %d returned %q, want %q", i, id, first)
		}
	}
}

func TestDescribeUserAgent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ua   string
		want string
	}{
		{
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			want: "Chrome on Windows",
		},
		{
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/115.0",
			want: "Firefox on macOS",
		},
		{
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Safari/604.1",
			want: "Safari on iOS",
		},
		{
			ua:   "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0",
			want: "Edge on Windows",
		},
		{
			ua:   "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36",
			want: "Chrome on Android",
		},
		{
			ua:   "curl/8.4.0",
			want: "Unknown Browser on Unknown OS",
		},
	}

	for _, tc := range cases {
		if got := DescribeUserAgent(tc.ua); got != tc.want {
			t.Fatalf("DescribeUserAgent(%q)=%q want=%q", tc.ua, got, tc.want)
		}
	}
}
