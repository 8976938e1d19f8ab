package schedule

import "sync"

// outbox hands notifications to a reader in order without ever blocking the
// writer. Pending items are kept in a slice and pumped by one goroutine.
type outbox struct {
	out    chan Notification
	wakeup chan struct{}

	mu      sync.Mutex
	pending []Notification
	closed  bool
}

func newOutbox() *outbox {
	o := &outbox{
		out:    make(chan Notification),
		wakeup: make(chan struct{}, 1),
	}
	go o.pump()
	return o
}

func (o *outbox) C() <-chan Notification { return o.out }

func (o *outbox) push(n Notification) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.pending = append(o.pending, n)
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wakeup <- struct{}{}:
	default:
	}
}

func (o *outbox) pump() {
	defer close(o.out)
	for {
		o.mu.Lock()
		batch := o.pending
		o.pending = nil
		closed := o.closed
		o.mu.Unlock()

		for _, n := range batch {
			o.out <- n
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-o.wakeup
	}
}
