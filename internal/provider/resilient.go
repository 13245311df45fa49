package provider

import (
	"context"
	"time"

	"github.com/rmoreira/leadqual-ai/pkg/logging"
)

const defaultRetryDelay = 500 * time.Millisecond

// Resilient wraps a primary provider with one bounded retry and an optional
// fallback backend. Transient transport failures get a single retry after a
// fixed delay before the fallback (if any) is consulted; only then does the
// error surface to the caller.
type Resilient struct {
	primary    AIProvider
	fallback   AIProvider
	retryDelay time.Duration
	logger     *logging.Logger
}

// NewResilient builds the wrapper. fallback may be nil.
func NewResilient(primary, fallback AIProvider, retryDelay time.Duration, logger *logging.Logger) *Resilient {
	if primary == nil {
		panic("provider: primary provider cannot be nil")
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resilient{
		primary:    primary,
		fallback:   fallback,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

func (r *Resilient) Name() string { return r.primary.Name() }

// GenerateResponse tries the primary twice, then the fallback once.
func (r *Resilient) GenerateResponse(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	text, err := r.primary.GenerateResponse(ctx, messages, opts)
	if err == nil {
		return text, nil
	}

	r.logger.Warn("primary provider failed, retrying once",
		"provider", r.primary.Name(),
		"error", err.Error(),
	)
	if sleepErr := sleepCtx(ctx, r.retryDelay); sleepErr != nil {
		return "", err
	}

	text, retryErr := r.primary.GenerateResponse(ctx, messages, opts)
	if retryErr == nil {
		return text, nil
	}

	if r.fallback == nil {
		return "", retryErr
	}

	r.logger.Warn("primary provider exhausted retries, using fallback",
		"primary", r.primary.Name(),
		"fallback", r.fallback.Name(),
		"error", retryErr.Error(),
	)
	text, fallbackErr := r.fallback.GenerateResponse(ctx, messages, opts)
	if fallbackErr != nil {
		r.logger.Error("fallback provider also failed",
			"primary_error", retryErr.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return "", fallbackErr
	}
	return text, nil
}

// ExtractStructuredData tries the primary, then the fallback. Extraction is
// degradable: when every backend fails, the caller gets an all-null field
// map rather than an error, so a turn never dies on extraction.
func (r *Resilient) ExtractStructuredData(ctx context.Context, text string, schema map[string]string) (map[string]*string, error) {
	fields, err := r.primary.ExtractStructuredData(ctx, text, schema)
	if err == nil {
		return fields, nil
	}

	if r.fallback != nil {
		fields, fallbackErr := r.fallback.ExtractStructuredData(ctx, text, schema)
		if fallbackErr == nil {
			return fields, nil
		}
		err = fallbackErr
	}

	r.logger.Warn("extraction degraded to all-null fields",
		"provider", r.primary.Name(),
		"error", err.Error(),
	)
	return nullExtraction(schema), nil
}

// HealthCheck reports healthy when any configured backend responds.
func (r *Resilient) HealthCheck(ctx context.Context) bool {
	if r.primary.HealthCheck(ctx) {
		return true
	}
	return r.fallback != nil && r.fallback.HealthCheck(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
