// Package helper provides navigation, element-wait and CSV export helpers
// on top of a driver.Driver.
//
// Every operation is synchronous and independent. Each one reports a
// request event before it starts and a response event when it returns to
// the configured Observer. A Helper is not safe for concurrent use because
// the underlying driver controls a single page.
package helper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/use-agent/browserkit/driver"
	"github.com/use-agent/browserkit/export"
	"github.com/use-agent/browserkit/models"
	"github.com/use-agent/browserkit/wait"
)

const (
	// DefaultWaitTime applies when a wait is given no positive duration.
	DefaultWaitTime = 10 * time.Second

	// DefaultPollInterval is the delay between two selector queries.
	DefaultPollInterval = 500 * time.Millisecond
)

// operations counts the exported helper operations reported by String.
const operations = 4

// Helper wraps a driver with convenience operations.
type Helper struct {
	driver       driver.Driver
	observer     Observer
	waitTime     time.Duration
	pollInterval time.Duration
}

// Option configures a Helper.
type Option func(*Helper)

// WithObserver sets the event observer. The default is a SlogObserver on
// slog.Default.
func WithObserver(o Observer) Option {
	return func(h *Helper) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithWaitTime sets the default element wait time.
func WithWaitTime(d time.Duration) Option {
	return func(h *Helper) {
		if d > 0 {
			h.waitTime = d
		}
	}
}

// WithPollInterval sets how often a wait re-queries the page.
func WithPollInterval(d time.Duration) Option {
	return func(h *Helper) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// New creates a Helper on d. The caller owns d and closes it.
func New(d driver.Driver, opts ...Option) *Helper {
	h := &Helper{
		driver:       d,
		observer:     NewSlogObserver(nil),
		waitTime:     DefaultWaitTime,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Driver returns the underlying driver.
func (h *Helper) Driver() driver.Driver { return h.driver }

func (h *Helper) String() string {
	return fmt.Sprintf("Helper(%s): defines %d utility browser methods", h.driver.Name(), operations)
}

// observe reports the request event and returns a func that reports the
// matching response event.
func (h *Helper) observe(action, payload string) func(resPayload string, err error) {
	start := time.Now()
	h.observer.Observe(Event{Action: action, Phase: PhaseRequest, Payload: payload})
	return func(resPayload string, err error) {
		h.observer.Observe(Event{
			Action:  action,
			Phase:   PhaseResponse,
			Payload: resPayload,
			Err:     err,
			Elapsed: time.Since(start),
		})
	}
}

// GoTo navigates to url.
func (h *Helper) GoTo(ctx context.Context, url string) (err error) {
	done := h.observe("go to", url)
	defer func() { done(url, err) }()

	if err := h.driver.Navigate(ctx, url); err != nil {
		return categorizeError(err, models.ErrCodeNavigation, "navigation to "+url+" failed")
	}
	return nil
}

// GoToByHref waits for selector to match exactly one element and navigates
// to that element's href. Zero or several matches fail with
// AMBIGUOUS_MATCH without navigating.
func (h *Helper) GoToByHref(ctx context.Context, selector string) error {
	href, err := h.HrefOf(ctx, selector)
	if err != nil {
		return err
	}
	return h.GoTo(ctx, href)
}

// HrefOf waits for selector to match exactly one element and returns its
// href, resolved to an absolute URL.
func (h *Helper) HrefOf(ctx context.Context, selector string) (string, error) {
	elements, err := h.WaitForElementsByCSSSelector(ctx, selector, 0)
	if err != nil {
		return "", err
	}
	if len(elements) != 1 {
		return "", models.NewHelperError(models.ErrCodeAmbiguousMatch,
			fmt.Sprintf("selector %q matched %d elements, want exactly 1", selector, len(elements)), nil)
	}

	href, ok, err := elements[0].Attribute(ctx, "href")
	if err != nil {
		return "", categorizeError(err, models.ErrCodeDriverFailure, "failed to read href")
	}
	if !ok || href == "" {
		return "", models.NewHelperError(models.ErrCodeMissingAttribute,
			fmt.Sprintf("element matched by %q has no href", selector), nil)
	}
	return href, nil
}

// WaitForElementsByCSSSelector polls until selector matches at least one
// element and returns the matches in document order. waitTime <= 0 uses
// the helper's default. It fails with TIMEOUT when nothing matches in time
// and with INVALID_SELECTOR on the first poll when the driver rejects the
// selector's syntax.
func (h *Helper) WaitForElementsByCSSSelector(ctx context.Context, selector string, waitTime time.Duration) (elements []driver.Element, err error) {
	done := h.observe("waiting for css selector", selector)
	defer func() { done(fmt.Sprintf("%d elements", len(elements)), err) }()

	if strings.TrimSpace(selector) == "" {
		return nil, models.NewHelperError(models.ErrCodeInvalidSelector, "css selector is empty", nil)
	}
	if waitTime <= 0 {
		waitTime = h.waitTime
	}

	elements, err = wait.Until(ctx, waitTime, h.pollInterval, wait.ElementsPresent(h.driver, selector))
	if err != nil {
		if errors.Is(err, wait.ErrTimeout) {
			return nil, models.NewHelperError(models.ErrCodeTimeout,
				fmt.Sprintf("no element matched %q within %s", selector, waitTime), err)
		}
		if errors.Is(err, driver.ErrInvalidSelector) {
			return nil, models.NewHelperError(models.ErrCodeInvalidSelector, err.Error(), err)
		}
		return nil, categorizeError(err, models.ErrCodeDriverFailure, "query for "+selector+" failed")
	}
	return elements, nil
}

// WriteToCSV writes rows to fileName with a header row from columns,
// replacing any existing content. Row keys must equal columns; a mismatch
// fails with SCHEMA_MISMATCH before the file is touched.
func (h *Helper) WriteToCSV(ctx context.Context, rows []export.Row, columns []string, fileName string) (err error) {
	done := h.observe("write to csv", fileName)
	defer func() { done(fileName, err) }()

	if err := ctx.Err(); err != nil {
		return categorizeError(err, models.ErrCodeIO, "export cancelled")
	}
	if err := export.WriteCSV(fileName, rows, columns); err != nil {
		if errors.Is(err, export.ErrSchemaMismatch) {
			return models.NewHelperError(models.ErrCodeSchemaMismatch, err.Error(), err)
		}
		return models.NewHelperError(models.ErrCodeIO, "failed to write "+fileName, err)
	}
	return nil
}

// categorizeError maps context expiry to TIMEOUT and everything else to
// code, keeping the original error in the chain.
func categorizeError(err error, code, msg string) *models.HelperError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewHelperError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewHelperError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewHelperError(code, msg, err)
	}
}
