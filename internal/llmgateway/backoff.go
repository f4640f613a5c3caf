package llmgateway

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// retryPolicy implements exponential backoff with full jitter (§4.3):
// delay = random(0, min(cap, base*2^attempt)).
type retryPolicy struct {
	base        time.Duration
	cap         time.Duration
	maxAttempts int
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{base: 200 * time.Millisecond, cap: 10 * time.Second, maxAttempts: 4}
}

func (p retryPolicy) delay(attempt int) time.Duration {
	exp := math.Min(float64(p.cap), float64(p.base)*math.Pow(2, float64(attempt)))
	return time.Duration(rand.Int63n(int64(exp) + 1))
}

// do runs fn up to maxAttempts times, sleeping with full-jitter backoff
// between retryable failures. Unauthorized and other non-retryable errors
// surface immediately without consuming the retry budget. fn returns a zero
// classification (nil err) on success.
func (p retryPolicy) do(ctx context.Context, fn func(attempt int) classification) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		class := fn(attempt)
		if class.err == nil {
			return nil
		}
		lastErr = class.err
		if !class.retryable {
			return lastErr
		}
		if attempt == p.maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return lastErr
}
