package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// ClassifyStatus maps an HTTP status code to a pool error Kind.
func ClassifyStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindInvalidKey
	default:
		return KindGeneral
	}
}

// IsFirstParty reports whether host is one of the providers' own
// endpoints, which get the shorter 120s timeout; everything else
// (proxies, self-hosted gateways) gets 180s.
func IsFirstParty(host string) bool {
	return host == "generativelanguage.googleapis.com" || host == "api.openai.com" ||
		hasSuffixDot(host, "generativelanguage.googleapis.com") || hasSuffixDot(host, "openai.com")
}

func hasSuffixDot(host, suffix string) bool {
	return len(host) > len(suffix) && host[len(host)-len(suffix)-1:] == "."+suffix
}

var googleRetryDelay = regexp.MustCompile(`"retryDelay"\s*:\s*"(\d+)s"`)

// googleRetryDelaySeconds extracts a Google-style RetryInfo.retryDelay
// ("<n>s") from a 429 response body, if present.
func googleRetryDelaySeconds(body []byte) (int, bool) {
	m := googleRetryDelay.FindSubmatch(body)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// AttemptFunc performs one raw HTTP call and returns the response body
// and status code (or a transport-level error with no status).
type AttemptFunc func(ctx context.Context) (body []byte, status int, err error)

// RunGeminiStyleRetries is the transport-level retry loop: up to
// params.MaxRetries attempts, each bounded by timeout, with exponential backoff
// (RetryDelay * 2^attempt), Google-style 429 RetryInfo honored when
// present, and a hard wall-clock bound of 2x the call timeout (chosen
// over an unbounded retry-counter loop so a persistently-429ing server
// cannot stall a chunk indefinitely). Despite the name this loop is
// shared by both dialects; only the 429-body RetryInfo parsing is
// Gemini-specific, and it is a no-op when absent.
func RunGeminiStyleRetries(ctx context.Context, timeout time.Duration, params GenerationParams, do AttemptFunc) ([]byte, error) {
	deadline := time.Now().Add(2 * timeout)
	var lastErr error

	for attempt := 0; attempt < params.MaxRetries; attempt++ {
		if time.Now().After(deadline) {
			return nil, NewError(KindGeneral, fmt.Errorf("adapter: exceeded wall-clock bound of %s before exhausting retries", 2*timeout))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		body, status, err := do(attemptCtx)
		cancel()
		if err != nil {
			lastErr = NewError(KindTransport, err)
		} else if status == http.StatusOK {
			return body, nil
		} else if status == http.StatusTooManyRequests {
			wait := params.RetryDelay * time.Duration(1<<uint(attempt))
			if secs, ok := googleRetryDelaySeconds(body); ok {
				wait = time.Duration(secs+5) * time.Second
			}
			lastErr = NewError(KindRateLimit, fmt.Errorf("adapter: HTTP 429: %s", truncate(body, 200)))
			if sleepOrDone(ctx, wait) {
				return nil, ctx.Err()
			}
			continue
		} else if status == http.StatusUnauthorized || status == http.StatusForbidden {
			// Not retryable: surface immediately.
			return nil, NewError(KindInvalidKey, fmt.Errorf("adapter: HTTP %d: %s", status, truncate(body, 200)))
		} else {
			lastErr = NewError(KindGeneral, fmt.Errorf("adapter: HTTP %d: %s", status, truncate(body, 200)))
		}

		wait := params.RetryDelay * time.Duration(1<<uint(attempt))
		if sleepOrDone(ctx, wait) {
			return nil, ctx.Err()
		}
	}

	if lastErr == nil {
		lastErr = NewError(KindGeneral, fmt.Errorf("adapter: exhausted %d attempts", params.MaxRetries))
	}
	return nil, lastErr
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(d):
		return false
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ReadAll reads r up to limit bytes, guarding against an adversarial or
// misconfigured endpoint streaming an unbounded body.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}
