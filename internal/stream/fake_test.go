package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

var errFakeClosed = errors.New("use of closed network connection")

// fakeDialer считает открытые сокеты и может блокировать dial
type fakeDialer struct {
	mu        sync.Mutex
	gate      chan struct{}
	err       error
	dials     int
	open      int
	maxOpen   int
	conns     []*fakeConn
	endpoints []string
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.endpoints = append(d.endpoints, endpoint)
	gate, err := d.gate, d.err
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	conn := &fakeConn{
		dialer: d,
		msgs:   make(chan []byte, 32),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}

	d.mu.Lock()
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	d.conns = append(d.conns, conn)
	d.mu.Unlock()

	return conn, nil
}

func (d *fakeDialer) release() {
	d.mu.Lock()
	d.open--
	d.mu.Unlock()
}

func (d *fakeDialer) counts() (dials, open, maxOpen int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, d.open, d.maxOpen
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type fakeConn struct {
	dialer     *fakeDialer
	msgs       chan []byte
	errs       chan error
	closed     chan struct{}
	closeCount atomic.Int32
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-f.closed:
		return 0, nil, errFakeClosed
	default:
	}

	select {
	case m := <-f.msgs:
		return websocket.TextMessage, m, nil
	case err := <-f.errs:
		return 0, nil, err
	case <-f.closed:
		return 0, nil, errFakeClosed
	}
}

func (f *fakeConn) Close() error {
	if f.closeCount.Add(1) == 1 {
		close(f.closed)
		f.dialer.release()
	}
	return nil
}

func (f *fakeConn) send(msg string) {
	f.msgs <- []byte(msg)
}

// stateRecorder собирает события состояния из обработчика
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}
