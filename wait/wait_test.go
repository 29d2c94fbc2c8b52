package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/browserkit/driver"
)

// countingDriver starts matching after a number of queries.
type countingDriver struct {
	matchAfter int32
	calls      atomic.Int32
	err        error
}

func (d *countingDriver) Name() string                           { return "counting" }
func (d *countingDriver) Navigate(context.Context, string) error { return nil }
func (d *countingDriver) Close() error                           { return nil }
func (d *countingDriver) FindElements(_ context.Context, _ string) ([]driver.Element, error) {
	n := d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	if d.matchAfter >= 0 && n > d.matchAfter {
		return []driver.Element{nil, nil}, nil
	}
	return []driver.Element{}, nil
}

func TestUntil_ImmediateSuccess(t *testing.T) {
	v, err := Until(context.Background(), time.Second, 10*time.Millisecond,
		func(context.Context) (int, bool, error) { return 42, true, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestUntil_Timeout(t *testing.T) {
	timeout := 100 * time.Millisecond
	interval := 20 * time.Millisecond
	start := time.Now()

	_, err := Until(context.Background(), timeout, interval,
		func(context.Context) (int, bool, error) { return 0, false, nil })

	elapsed := time.Since(start)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+interval+200*time.Millisecond, "should stop within one poll of the deadline")
}

func TestUntil_ConditionErrorStops(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	_, err := Until(context.Background(), time.Second, 5*time.Millisecond,
		func(context.Context) (int, bool, error) {
			calls++
			return 0, false, boom
		})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := Until(ctx, 5*time.Second, 10*time.Millisecond,
		func(context.Context) (int, bool, error) { return 0, false, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestUntil_InvalidInterval(t *testing.T) {
	_, err := Until(context.Background(), time.Second, 0,
		func(context.Context) (int, bool, error) { return 0, true, nil })
	assert.Error(t, err)
}

func TestElementsPresent_EventuallyMatches(t *testing.T) {
	d := &countingDriver{matchAfter: 3}
	els, err := Until(context.Background(), time.Second, 5*time.Millisecond, ElementsPresent(d, "a"))
	require.NoError(t, err)
	assert.Len(t, els, 2)
	assert.Equal(t, int32(4), d.calls.Load())
}

func TestElementsPresent_NeverMatches(t *testing.T) {
	d := &countingDriver{matchAfter: -1}
	_, err := Until(context.Background(), 50*time.Millisecond, 10*time.Millisecond, ElementsPresent(d, "a"))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Greater(t, d.calls.Load(), int32(1), "should poll more than once")
}

func TestElementsPresent_DriverError(t *testing.T) {
	boom := errors.New("tab crashed")
	d := &countingDriver{err: boom}
	_, err := Until(context.Background(), time.Second, 5*time.Millisecond, ElementsPresent(d, "a"))
	assert.ErrorIs(t, err, boom)
}
