package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/browserkit/helper"
	"github.com/use-agent/browserkit/models"
)

type capture struct {
	mu     sync.Mutex
	events []Event
	sigs   []string
}

func (c *capture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var e Event
		require.NoError(t, json.Unmarshal(body, &e))

		c.mu.Lock()
		c.events = append(c.events, e)
		c.sigs = append(c.sigs, r.Header.Get(SignatureHeader))
		c.mu.Unlock()
	}
}

func TestDeliver_Signs(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.Client(), srv.URL, "s3cret", &Event{ID: "1", Type: "action.completed"})
	require.NoError(t, err)
	assert.Equal(t, "sha256="+Sign("s3cret", gotBody), gotSig)
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.Client(), srv.URL, "", &Event{})
	assert.ErrorContains(t, err, "status 500")
}

func TestNotifier_ForwardsResponses(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.Observe(helper.Event{Action: "go to", Phase: helper.PhaseRequest, Payload: "http://a"})
	n.Observe(helper.Event{Action: "go to", Phase: helper.PhaseResponse, Payload: "http://a", Elapsed: 1500 * time.Millisecond})
	n.Observe(helper.Event{
		Action: "write to csv",
		Phase:  helper.PhaseResponse,
		Err:    models.NewHelperError(models.ErrCodeSchemaMismatch, "row 0: missing key", nil),
	})
	require.NoError(t, n.Close(context.Background()))

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.events, 2)

	byAction := map[string]Event{}
	for _, e := range c.events {
		byAction[e.Action] = e
		assert.NotEmpty(t, e.ID)
	}
	assert.Equal(t, []string{"", ""}, c.sigs)
	ok := byAction["go to"]
	assert.Equal(t, "action.completed", ok.Type)
	assert.Equal(t, int64(1500), ok.ElapsedMs)
	assert.Nil(t, ok.Error)

	failed := byAction["write to csv"]
	assert.Equal(t, "action.failed", failed.Type)
	require.NotNil(t, failed.Error)
	assert.Equal(t, models.ErrCodeSchemaMismatch, failed.Error.Code)
}

func TestNotifier_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "k")
	n.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	n.Observe(helper.Event{Action: "go to", Phase: helper.PhaseResponse})
	require.NoError(t, n.Close(context.Background()))

	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifier_CloseHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	n := NewNotifier(srv.URL, "")
	n.delays = []time.Duration{0}
	n.Observe(helper.Event{Action: "go to", Phase: helper.PhaseResponse})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, n.Close(ctx), context.DeadlineExceeded)
}
