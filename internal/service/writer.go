package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrWriterClosed is returned by Do once the writer stopped accepting jobs.
var ErrWriterClosed = errors.New("writer closed")

// Writer runs persistence jobs one at a time on a background goroutine, in
// the order they were submitted. Submit never blocks, so event handlers can
// hand off database work without stalling the player.
//
// Thread-safety: all methods are safe for concurrent use.
type Writer struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending []writeJob
	closed  bool

	wake chan struct{}
	done chan struct{}
}

type writeJob struct {
	name string
	fn   func() error
}

// NewWriter starts a writer. Close must be called to stop it.
func NewWriter(logger *slog.Logger) *Writer {
	w := &Writer{
		logger: logger.With(slog.String("component", "writer")),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues fn. Failures are logged, never returned. Jobs submitted after
// Close are dropped.
func (w *Writer) Submit(name string, fn func() error) {
	if !w.enqueue(writeJob{name: name, fn: fn}) {
		w.logger.Debug("write dropped after close", slog.String("job", name))
	}
}

// Do queues fn behind the pending jobs and waits for its result.
func (w *Writer) Do(ctx context.Context, name string, fn func() error) error {
	result := make(chan error, 1)
	job := writeJob{name: name, fn: func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", name, r)
			}
			result <- err
		}()
		return fn()
	}}
	if !w.enqueue(job) {
		return ErrWriterClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) enqueue(job writeJob) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.pending = append(w.pending, job)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush blocks until every job submitted before the call has run.
func (w *Writer) Flush() {
	barrier := make(chan struct{})

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.pending = append(w.pending, writeJob{name: "flush", fn: func() error {
		close(barrier)
		return nil
	}})
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	<-barrier
}

// Close runs the jobs already queued and stops the goroutine. It is idempotent.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	w.mu.Unlock()

	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)

	for {
		w.mu.Lock()
		for len(w.pending) == 0 {
			if w.closed {
				w.mu.Unlock()
				return
			}
			w.mu.Unlock()
			<-w.wake
			w.mu.Lock()
		}
		job := w.pending[0]
		w.pending = w.pending[1:]
		w.mu.Unlock()

		w.exec(job)
	}
}

func (w *Writer) exec(job writeJob) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("write job panicked",
				slog.String("job", job.name),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := job.fn(); err != nil {
		w.logger.Warn("write job failed",
			slog.String("job", job.name),
			slog.Any("error", err))
	}
}
