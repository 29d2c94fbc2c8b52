package helper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/browserkit/config"
	"github.com/use-agent/browserkit/driver"
	"github.com/use-agent/browserkit/export"
	"github.com/use-agent/browserkit/models"
	"github.com/use-agent/browserkit/wait"
)

// fakeElement is an element with a fixed attribute set.
type fakeElement struct {
	attrs map[string]string
	text  string
}

func (e fakeElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e fakeElement) Text(context.Context) (string, error) { return e.text, nil }

// fakeDriver records navigations and serves canned query results.
type fakeDriver struct {
	mu          sync.Mutex
	navigations []string
	navErr      error
	matches     map[string][]driver.Element
	rejects     map[string]bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{matches: make(map[string][]driver.Element), rejects: make(map[string]bool)}
}

func (d *fakeDriver) Name() string { return "fake" }
func (d *fakeDriver) Close() error  { return nil }

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations = append(d.navigations, url)
	return d.navErr
}

func (d *fakeDriver) FindElements(_ context.Context, selector string) ([]driver.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rejects[selector] {
		return nil, fmt.Errorf("fake: %w %q", driver.ErrInvalidSelector, selector)
	}
	return d.matches[selector], nil
}

func (d *fakeDriver) set(selector string, els ...driver.Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.matches[selector] = els
}

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func newTestHelper(d driver.Driver, rec *recorder) *Helper {
	return New(d,
		WithObserver(rec),
		WithWaitTime(100*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
	)
}

func TestGoTo_SingleNavigation(t *testing.T) {
	d := newFakeDriver()
	rec := &recorder{}
	h := newTestHelper(d, rec)

	require.NoError(t, h.GoTo(context.Background(), "https://example.com"))
	assert.Equal(t, []string{"https://example.com"}, d.navigations)

	require.Len(t, rec.events, 2)
	assert.Equal(t, Event{Action: "go to", Phase: PhaseRequest, Payload: "https://example.com"}, rec.events[0])
	assert.Equal(t, PhaseResponse, rec.events[1].Phase)
	assert.Equal(t, "https://example.com", rec.events[1].Payload)
	assert.NoError(t, rec.events[1].Err)
}

func TestGoTo_DriverErrorPropagates(t *testing.T) {
	d := newFakeDriver()
	d.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	rec := &recorder{}
	h := newTestHelper(d, rec)

	err := h.GoTo(context.Background(), "https://nowhere.invalid")
	require.Error(t, err)
	assert.ErrorIs(t, err, d.navErr)
	assert.Equal(t, models.ErrCodeNavigation, models.CodeOf(err))
	assert.Equal(t, err, rec.events[len(rec.events)-1].Err)
}

func TestGoTo_DeadlineIsTimeout(t *testing.T) {
	d := newFakeDriver()
	d.navErr = context.DeadlineExceeded
	h := newTestHelper(d, &recorder{})

	err := h.GoTo(context.Background(), "https://slow.example")
	assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
}

func TestWaitForElements_ReturnsMatches(t *testing.T) {
	d := newFakeDriver()
	d.set("li", fakeElement{text: "1"}, fakeElement{text: "2"})
	rec := &recorder{}
	h := newTestHelper(d, rec)

	els, err := h.WaitForElementsByCSSSelector(context.Background(), "li", 0)
	require.NoError(t, err)
	require.Len(t, els, 2)

	require.Len(t, rec.events, 2)
	assert.Equal(t, "waiting for css selector", rec.events[0].Action)
	assert.Equal(t, "li", rec.events[0].Payload)
	assert.Equal(t, "2 elements", rec.events[1].Payload)
}

func TestWaitForElements_AppearsLater(t *testing.T) {
	d := newFakeDriver()
	h := newTestHelper(d, &recorder{})
	time.AfterFunc(30*time.Millisecond, func() { d.set(".late", fakeElement{}) })

	els, err := h.WaitForElementsByCSSSelector(context.Background(), ".late", time.Second)
	require.NoError(t, err)
	assert.Len(t, els, 1)
}

func TestWaitForElements_Timeout(t *testing.T) {
	d := newFakeDriver()
	rec := &recorder{}
	h := newTestHelper(d, rec)

	start := time.Now()
	_, err := h.WaitForElementsByCSSSelector(context.Background(), ".never", 80*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
	assert.ErrorIs(t, err, wait.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "0 elements", last.Payload)
	assert.Error(t, last.Err)
}

func TestWaitForElements_InvalidSelector(t *testing.T) {
	d := newFakeDriver()
	d.rejects["a[href"] = true
	h := newTestHelper(d, &recorder{})

	start := time.Now()
	_, err := h.WaitForElementsByCSSSelector(context.Background(), "a[href", 0)
	assert.Equal(t, models.ErrCodeInvalidSelector, models.CodeOf(err))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "syntax errors must not be polled")

	_, err = h.WaitForElementsByCSSSelector(context.Background(), "  ", 0)
	assert.Equal(t, models.ErrCodeInvalidSelector, models.CodeOf(err))
}

// Selectors outside the static driver's CSS dialect are handed to the
// browser backends untouched.
func TestWaitForElements_BrowserOnlySelectors(t *testing.T) {
	selectors := []string{
		":is(h1, h2)",
		":where(.x)",
		":scope > a",
		"li:nth-child(2 of .x)",
	}
	for _, sel := range selectors {
		t.Run(sel, func(t *testing.T) {
			d := newFakeDriver()
			d.set(sel, fakeElement{text: "match"})
			h := newTestHelper(d, &recorder{})

			els, err := h.WaitForElementsByCSSSelector(context.Background(), sel, 0)
			require.NoError(t, err)
			assert.Len(t, els, 1)
		})
	}
}

func TestGoToByHref_ExactlyOne(t *testing.T) {
	d := newFakeDriver()
	d.set("a.next", fakeElement{attrs: map[string]string{"href": "https://example.com/2"}})
	h := newTestHelper(d, &recorder{})

	require.NoError(t, h.GoToByHref(context.Background(), "a.next"))
	assert.Equal(t, []string{"https://example.com/2"}, d.navigations)
}

func TestGoToByHref_SeveralMatches(t *testing.T) {
	d := newFakeDriver()
	link := fakeElement{attrs: map[string]string{"href": "https://example.com"}}
	d.set("a", link, link)
	h := newTestHelper(d, &recorder{})

	err := h.GoToByHref(context.Background(), "a")
	assert.Equal(t, models.ErrCodeAmbiguousMatch, models.CodeOf(err))
	assert.Empty(t, d.navigations)
}

func TestGoToByHref_NoMatch(t *testing.T) {
	d := newFakeDriver()
	h := newTestHelper(d, &recorder{})

	err := h.GoToByHref(context.Background(), "a.missing")
	assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
	assert.Empty(t, d.navigations)
}

func TestGoToByHref_MissingHref(t *testing.T) {
	d := newFakeDriver()
	d.set("span", fakeElement{})
	h := newTestHelper(d, &recorder{})

	err := h.GoToByHref(context.Background(), "span")
	assert.Equal(t, models.ErrCodeMissingAttribute, models.CodeOf(err))
	assert.Empty(t, d.navigations)
}

func TestWriteToCSV(t *testing.T) {
	rec := &recorder{}
	h := newTestHelper(newFakeDriver(), rec)
	path := filepath.Join(t.TempDir(), "rows.csv")

	rows := []export.Row{{"a": 1, "b": 2}, {"a": 3, "b": 4}}
	require.NoError(t, h.WriteToCSV(context.Background(), rows, []string{"a", "b"}, path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n3,4\n", string(b))

	require.Len(t, rec.events, 2)
	assert.Equal(t, "write to csv", rec.events[0].Action)
	assert.Equal(t, path, rec.events[0].Payload)
	assert.Equal(t, path, rec.events[1].Payload)
}

func TestWriteToCSV_ErrorCodes(t *testing.T) {
	h := newTestHelper(newFakeDriver(), &recorder{})
	dir := t.TempDir()

	err := h.WriteToCSV(context.Background(), []export.Row{{"x": 1}}, []string{"a"}, filepath.Join(dir, "bad.csv"))
	assert.Equal(t, models.ErrCodeSchemaMismatch, models.CodeOf(err))
	_, statErr := os.Stat(filepath.Join(dir, "bad.csv"))
	assert.True(t, os.IsNotExist(statErr), "nothing is created on schema mismatch")

	err = h.WriteToCSV(context.Background(), []export.Row{{"a": 1}}, []string{"a"}, filepath.Join(dir, "missing", "x.csv"))
	assert.Equal(t, models.ErrCodeIO, models.CodeOf(err))
	var pathErr *os.PathError
	assert.ErrorAs(t, err, &pathErr)
}

func TestString(t *testing.T) {
	h := New(newFakeDriver())
	assert.Equal(t, "Helper(fake): defines 4 utility browser methods", h.String())
}

// TestGoToByHref_StaticDriver runs the helper end to end against the HTTP
// driver and a local server.
func TestGoToByHref_StaticDriver(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<a id="go" href="/second">go</a>`))
	})
	mux.HandleFunc("/second", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<h1 class="title">Second</h1>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := driver.NewHTTP(config.BrowserConfig{})
	h := New(d, WithObserver(NopObserver{}), WithWaitTime(200*time.Millisecond), WithPollInterval(20*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, h.GoTo(ctx, srv.URL+"/"))
	require.NoError(t, h.GoToByHref(ctx, "#go"))
	assert.Equal(t, srv.URL+"/second", d.CurrentURL())

	els, err := h.WaitForElementsByCSSSelector(ctx, "h1.title", 0)
	require.NoError(t, err)
	require.Len(t, els, 1)
	text, err := els[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Second", text)
}
