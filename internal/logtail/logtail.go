package logtail

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Store keeps the most recent log lines.
type Store interface {
	Append(ctx context.Context, line string) error
	Tail(ctx context.Context, n int) ([]string, error)
}

type Broadcaster interface {
	Broadcast(msg string)
}

const (
	queueSize     = 1024
	appendTimeout = 2 * time.Second
)

// Writer is an io.Writer for the log handler. Every complete line is broadcast right away
// and queued for the store; a single goroutine drains the queue in order. Lines are dropped
// when the queue is full so a slow store never stalls logging.
type Writer struct {
	store Store
	queue chan string
	done  chan struct{}

	mu          sync.Mutex
	partial     []byte
	broadcaster Broadcaster
	closed      bool

	onError func(error)
	failing atomic.Bool
	failed  atomic.Int64
	dropped atomic.Int64
}

func NewWriter(store Store) *Writer {
	w := &Writer{
		store: store,
		queue: make(chan string, queueSize),
		done:  make(chan struct{}),
	}
	go w.drain()
	return w
}

func (w *Writer) SetBroadcaster(b Broadcaster) {
	w.mu.Lock()
	w.broadcaster = b
	w.mu.Unlock()
}

// OnError sets a callback invoked once each time the store starts failing.
func (w *Writer) OnError(fn func(error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)

	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := string(w.partial[:i])
		w.partial = w.partial[i+1:]
		if line == "" {
			continue
		}

		if !w.closed {
			select {
			case w.queue <- line:
			default:
				w.dropped.Add(1)
			}
		}

		if w.broadcaster != nil {
			w.broadcaster.Broadcast(line)
		}
	}

	return len(p), nil
}

func (w *Writer) drain() {
	defer close(w.done)

	for line := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := w.store.Append(ctx, line)
		cancel()

		if err == nil {
			w.failing.Store(false)
			continue
		}

		w.failed.Add(1)
		if !w.failing.Swap(true) {
			w.mu.Lock()
			fn := w.onError
			w.mu.Unlock()
			if fn != nil {
				fn(err)
			}
		}
	}
}

// Failures reports how many lines the store rejected and how many were dropped on a full queue.
func (w *Writer) Failures() (failed, dropped int64) {
	return w.failed.Load(), w.dropped.Load()
}

// Close stops accepting lines and waits for the queue to drain.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	<-w.done
	return nil
}

func (w *Writer) Tail(ctx context.Context, n int) ([]string, error) {
	return w.store.Tail(ctx, n)
}

// Memory is a fixed-size in-process ring of lines.
type Memory struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func NewMemory(size int) *Memory {
	if size < 1 {
		size = 1
	}
	return &Memory{lines: make([]string, size)}
}

func (m *Memory) Append(_ context.Context, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lines[m.next] = line
	m.next = (m.next + 1) % len(m.lines)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Tail returns up to n lines, oldest first.
func (m *Memory) Tail(_ context.Context, n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.next
	if m.full {
		count = len(m.lines)
	}
	if n > count {
		n = count
	}

	out := make([]string, 0, n)
	start := m.next - n
	for i := 0; i < n; i++ {
		idx := (start + i + len(m.lines)) % len(m.lines)
		out = append(out, m.lines[idx])
	}
	return out, nil
}
