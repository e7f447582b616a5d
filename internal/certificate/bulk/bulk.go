// Package bulk fans a per-item operation out over a batch and reports every
// item's outcome independently.
//
// Guarantees:
//   - results have the same length and order as the input
//   - an item's failure or panic never stops its siblings
//   - items not yet started when ctx is cancelled fail with kind Cancelled;
//     items already finished keep their outcome
//   - duplicate keys are rejected before any item runs
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"certledger/internal/certificate/models"
	dErrors "certledger/pkg/domain-errors"
	pstrings "certledger/pkg/platform/strings"
	pvalidation "certledger/pkg/platform/validation"
)

const (
	DefaultMinItems    = pvalidation.MinBulkItems
	DefaultMaxItems    = pvalidation.MaxBulkItems
	DefaultConcurrency = 8
)

// Status is the per-item outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ItemError is the structured failure attached to a failed item.
type ItemError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is one item's outcome, keyed by the caller's item key.
type Result[O any] struct {
	Key     string     `json:"key"`
	Status  Status     `json:"status"`
	Payload *O         `json:"payload,omitempty"`
	Error   *ItemError `json:"error,omitempty"`
}

// Summary counts are always derived from the results.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summarize recomputes the aggregate counts for results.
func Summarize[O any](results []Result[O]) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Status == StatusSuccess {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

type config struct {
	minItems    int
	maxItems    int
	concurrency int
	classify    func(error) string
	preflight   func(context.Context) error
}

type Option func(*config)

// WithLimits sets the accepted batch size range.
func WithLimits(minItems, maxItems int) Option {
	return func(c *config) {
		if minItems > 0 {
			c.minItems = minItems
		}
		if maxItems > 0 {
			c.maxItems = maxItems
		}
	}
}

// WithConcurrency bounds how many items run at once.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithClassifier maps an item error to its reported kind.
func WithClassifier(fn func(error) string) Option {
	return func(c *config) {
		if fn != nil {
			c.classify = fn
		}
	}
}

// WithPreflight runs fn once before fan-out. Its error aborts the whole batch.
func WithPreflight(fn func(context.Context) error) Option {
	return func(c *config) {
		c.preflight = fn
	}
}

func newConfig(opts []Option) config {
	c := config{
		minItems:    DefaultMinItems,
		maxItems:    DefaultMaxItems,
		concurrency: DefaultConcurrency,
		classify:    models.KindString,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// ValidateKeys rejects batches outside [minItems, maxItems] or with repeated keys.
func ValidateKeys(keys []string, minItems, maxItems int) error {
	if maxItems <= 0 {
		maxItems = len(keys)
	}
	if err := pvalidation.CheckSliceRange("batch items", len(keys), minItems, maxItems); err != nil {
		return err
	}
	for i, k := range keys {
		if strings.TrimSpace(k) == "" {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("item %d has an empty key", i))
		}
	}
	if dups := pstrings.Duplicates(keys); len(dups) > 0 {
		return dErrors.New(dErrors.CodeValidation, "batch contains duplicate items: "+strings.Join(dups, ", "))
	}
	return nil
}

// Run validates the batch, then executes op for every item with bounded
// concurrency. The returned error is non-nil only when the batch as a whole
// was rejected (validation or preflight); item failures live in the results.
func Run[I, O any](ctx context.Context, items []I, key func(I) string, op func(context.Context, I) (O, error), opts ...Option) ([]Result[O], error) {
	cfg := newConfig(opts)

	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = key(item)
	}
	if err := ValidateKeys(keys, cfg.minItems, cfg.maxItems); err != nil {
		return nil, err
	}
	if cfg.preflight != nil {
		if err := cfg.preflight(ctx); err != nil {
			return nil, err
		}
	}

	results := make([]Result[O], len(items))
	var g errgroup.Group
	g.SetLimit(cfg.concurrency)

	for i, item := range items {
		if ctx.Err() != nil {
			results[i] = cancelled[O](keys[i])
			continue
		}
		g.Go(func() error {
			results[i] = runItem(ctx, cfg, keys[i], item, op)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// runItem writes only to its own result slot.
func runItem[I, O any](ctx context.Context, cfg config, key string, item I, op func(context.Context, I) (O, error)) (res Result[O]) {
	if ctx.Err() != nil {
		return cancelled[O](key)
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result[O]{
				Key:    key,
				Status: StatusFailed,
				Error:  &ItemError{Kind: string(models.KindInternal), Message: fmt.Sprintf("item panicked: %v", r)},
			}
		}
	}()

	out, err := op(ctx, item)
	if err != nil {
		kind := cfg.classify(err)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			kind = string(models.KindCancelled)
		}
		return Result[O]{
			Key:    key,
			Status: StatusFailed,
			Error:  &ItemError{Kind: kind, Message: err.Error()},
		}
	}
	return Result[O]{Key: key, Status: StatusSuccess, Payload: &out}
}

func cancelled[O any](key string) Result[O] {
	return Result[O]{
		Key:    key,
		Status: StatusFailed,
		Error:  &ItemError{Kind: string(models.KindCancelled), Message: "batch cancelled before item started"},
	}
}
