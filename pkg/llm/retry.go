package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrTransient marks an error as worth retrying.
var ErrTransient = errors.New("transient error")

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct{ err error }

func (e *transientError) Error() string        { return e.err.Error() }
func (e *transientError) Unwrap() error        { return e.err }
func (e *transientError) Is(target error) bool { return target == ErrTransient }

// RetryConfig controls the backoff discipline shared by every remote call.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration // delay before the second attempt, doubled afterwards
	MaxBackoff  time.Duration
	Timeout     time.Duration // per attempt
	RateLimit   float64       // requests per second, 0 disables limiting
}

// Retrier runs remote calls with a per-call timeout, a shared rate limit and
// exponential backoff on transient failures.
type Retrier struct {
	config  RetryConfig
	limiter *rate.Limiter
}

func NewRetrier(config RetryConfig) *Retrier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Backoff <= 0 {
		config.Backoff = 500 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 10 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		burst := int(config.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Retrier{config: config, limiter: limiter}
}

// MaxAttempts reports the attempt cap.
func (r *Retrier) MaxAttempts() int {
	return r.config.MaxAttempts
}

// Do runs fn until it succeeds, fails permanently, or the attempt cap is
// reached. It returns the number of attempts made.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	var err error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if werr := sleep(ctx, r.delay(attempt-1)); werr != nil {
				return attempt, werr
			}
		}

		if werr := r.limiter.Wait(ctx); werr != nil {
			return attempt, werr
		}

		callCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		err = fn(callCtx)
		cancel()

		if err == nil {
			return attempt + 1, nil
		}
		// The request itself was abandoned; retrying cannot help.
		if ctx.Err() != nil {
			return attempt + 1, ctx.Err()
		}
		if !IsTransient(err) {
			return attempt + 1, err
		}
	}
	return r.config.MaxAttempts, err
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var out T
	attempts, err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, attempts, err
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := r.config.Backoff << attempt
	if d <= 0 || d > r.config.MaxBackoff {
		d = r.config.MaxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// statusPattern matches the status phrasing of the openai client
// ("unexpected status code: 503").
var statusPattern = regexp.MustCompile(`status code:? (\d{3})\b`)

// retryableStatus holds the codes worth retrying, keyed to the status line
// text the ollama client reports ("503 service unavailable").
var retryableStatus = map[int]string{}

func init() {
	for _, code := range []int{
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	} {
		retryableStatus[code] = fmt.Sprintf("%d %s", code, strings.ToLower(http.StatusText(code)))
	}
}

var unavailablePhrases = []string{
	"too many requests",
	"rate limit",
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"deadline exceeded",
	"timeout exceeded",
}

// IsTransient reports whether err looks like a timeout, a rate limit, a
// server-side failure or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, io.ErrUnexpectedEOF) || IsUnavailable(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if code, ok := statusCode(msg); ok {
		_, retry := retryableStatus[code]
		return retry
	}
	for _, line := range retryableStatus {
		if strings.Contains(msg, line) {
			return true
		}
	}
	return strings.Contains(msg, "unexpected eof")
}

// IsUnavailable reports whether err means the service is throttling or
// cannot be reached in time. Splitting the work into smaller requests does
// not help with these.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if code, ok := statusCode(msg); ok && code == http.StatusTooManyRequests {
		return true
	}
	for _, phrase := range unavailablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

func statusCode(msg string) (int, bool) {
	m := statusPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	return code, err == nil
}
