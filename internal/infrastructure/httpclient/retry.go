package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// maxRetryAfter caps how long a Retry-After header can stall a caller.
const maxRetryAfter = 2 * time.Minute

// RetryAfter parses a Retry-After header in seconds or HTTP-date form.
// It returns 0 when the header is absent or unparseable.
func RetryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}
