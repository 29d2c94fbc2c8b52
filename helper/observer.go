package helper

import (
	"context"
	"log/slog"
	"time"
)

// Phase marks whether an Event opens or closes an operation.
type Phase string

const (
	PhaseRequest  Phase = "REQ"
	PhaseResponse Phase = "RES"
)

// Event is reported before and after every helper operation.
type Event struct {
	Action  string
	Phase   Phase
	Payload string

	// Err and Elapsed are set on PhaseResponse only.
	Err     error
	Elapsed time.Duration
}

// Observer receives helper events. Observe must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) Observe(Event) {}

// SlogObserver writes events to a slog.Logger. Requests log at debug level,
// responses at info, failures at warn.
type SlogObserver struct {
	Logger *slog.Logger
}

// NewSlogObserver returns an observer on logger, or on slog.Default when
// logger is nil.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{Logger: logger}
}

func (o *SlogObserver) Observe(e Event) {
	attrs := []slog.Attr{
		slog.String("phase", string(e.Phase)),
		slog.String("payload", e.Payload),
	}
	level := slog.LevelDebug
	if e.Phase == PhaseResponse {
		level = slog.LevelInfo
		attrs = append(attrs, slog.Duration("elapsed", e.Elapsed))
	}
	if e.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	o.Logger.LogAttrs(context.Background(), level, e.Action, attrs...)
}

// MultiObserver fans every event out to each non-nil observer in order.
func MultiObserver(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(e Event) {
		for _, o := range list {
			o.Observe(e)
		}
	})
}
