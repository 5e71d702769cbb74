package blockstore

import (
	"context"
	"errors"
	"time"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// retryOptions configures RetryStore. Mirrors the teacher's
// ReaderOptions/ReaderOption pattern (massifs/readeroptions.go): a private
// struct plus functional options, constructed once and applied at
// NewRetryStore time.
type retryOptions struct {
	maxAttempts int
	window      time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration
}

// RetryOption configures a RetryStore.
type RetryOption func(*retryOptions)

func defaultRetryOptions() retryOptions {
	return retryOptions{
		maxAttempts: 3, // initial attempt plus 2 retries, per spec.md §4.1
		window:      2 * time.Second,
		backoffBase: time.Second,
		backoffCap:  10 * time.Second,
	}
}

// WithMaxAttempts sets the total number of attempts (including the first),
// overriding the default of 3 (one initial attempt, two retries).
func WithMaxAttempts(n int) RetryOption {
	return func(o *retryOptions) { o.maxAttempts = n }
}

// WithRetryWindow bounds how long a single attempt may take before it is
// abandoned as failed. The backoff wait between attempts is not counted
// against this window.
func WithRetryWindow(d time.Duration) RetryOption {
	return func(o *retryOptions) { o.window = d }
}

// WithBackoff sets the exponential backoff floor and ceiling between
// attempts: attempt i waits min(base*2^i, cap).
func WithBackoff(base, ceiling time.Duration) RetryOption {
	return func(o *retryOptions) { o.backoffBase = base; o.backoffCap = ceiling }
}

// RetryStore wraps any Store with bounded retry-with-backoff, per spec.md
// §4.1's block store requirement that transient backend failures not
// immediately surface as permanent errors. It decorates rather than
// replaces: any backend (MemoryStore, BoltStore, AzureStore) can be wrapped.
type RetryStore struct {
	inner Store
	opts  retryOptions
}

var _ Store = (*RetryStore)(nil)

// NewRetryStore wraps inner with the given retry policy.
func NewRetryStore(inner Store, opts ...RetryOption) *RetryStore {
	o := defaultRetryOptions()
	for _, apply := range opts {
		apply(&o)
	}
	return &RetryStore{inner: inner, opts: o}
}

// retry runs op up to opts.maxAttempts times, sleeping with exponential
// backoff between attempts. It gives up early if ctx is done or op returns
// an error that wraps ErrBlockNotFound/ErrHashMismatch, since retrying a
// request for a block that does not exist cannot succeed.
func retry(ctx context.Context, o retryOptions, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.window)
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrBlockNotFound) || errors.Is(err, ErrHashMismatch) {
			return err
		}
		lastErr = err
		if attempt == o.maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(o, attempt)):
		}
	}
	return errors.Join(ErrRetriesExhausted, lastErr)
}

func backoffFor(o retryOptions, attempt int) time.Duration {
	d := o.backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= o.backoffCap {
			return o.backoffCap
		}
	}
	return d
}

func (s *RetryStore) GetBlock(ctx context.Context, h link.ContentHash) ([]byte, error) {
	var out []byte
	err := retry(ctx, s.opts, func(ctx context.Context) error {
		b, err := s.inner.GetBlock(ctx, h)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (s *RetryStore) HasBlock(ctx context.Context, h link.ContentHash) (bool, error) {
	var found bool
	err := retry(ctx, s.opts, func(ctx context.Context) error {
		f, err := s.inner.HasBlock(ctx, h)
		if err != nil {
			return err
		}
		found = f
		return nil
	})
	return found, err
}

func (s *RetryStore) PutBlock(ctx context.Context, codec link.Codec, bytes []byte) (link.ContentHash, error) {
	var h link.ContentHash
	err := retry(ctx, s.opts, func(ctx context.Context) error {
		got, err := s.inner.PutBlock(ctx, codec, bytes)
		if err != nil {
			return err
		}
		h = got
		return nil
	})
	return h, err
}

func (s *RetryStore) PutLinks(ctx context.Context, roots []link.ContentHash, blocks map[string][]byte) error {
	return retry(ctx, s.opts, func(ctx context.Context) error {
		return s.inner.PutLinks(ctx, roots, blocks)
	})
}

func (s *RetryStore) Flush(ctx context.Context) error {
	return retry(ctx, s.opts, s.inner.Flush)
}
