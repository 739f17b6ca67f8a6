package alert

import (
	"context"
	"sync"

	"github.com/ayusman/neuropose/internal/log"
)

// Notifier fans punch start and stop events out to every interested hook.
// Each hook has its own worker, so a hook sees its events in the order they
// were notified while the caller never waits on it.
type Notifier struct {
	manager  *Manager
	executor *Executor

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string]*hookQueue
	closed bool

	pending sync.WaitGroup
	workers sync.WaitGroup
}

type delivery struct {
	hook *Hook
	req  Request
}

// hookQueue is an unbounded FIFO drained by one worker.
type hookQueue struct {
	mu    sync.Mutex
	items []delivery
	wake  chan struct{}
}

func (q *hookQueue) push(d delivery) {
	q.mu.Lock()
	q.items = append(q.items, d)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *hookQueue) pop() (delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return delivery{}, false
	}
	d := q.items[0]
	q.items[0] = delivery{}
	q.items = q.items[1:]
	return d, true
}

// NewNotifier creates a Notifier over manager's hooks.
func NewNotifier(manager *Manager, executor *Executor) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		manager:  manager,
		executor: executor,
		ctx:      ctx,
		cancel:   cancel,
		queues:   make(map[string]*hookQueue),
	}
}

// Notify queues req for every hook that wants req.Event and returns
// immediately. It does nothing after Close.
func (n *Notifier) Notify(req Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	for _, hook := range n.manager.List() {
		if !hook.Wants(req.Event) {
			continue
		}

		q, ok := n.queues[hook.Manifest.Name]
		if !ok {
			q = &hookQueue{wake: make(chan struct{}, 1)}
			n.queues[hook.Manifest.Name] = q
			n.workers.Add(1)
			go n.work(q)
		}

		n.pending.Add(1)
		q.push(delivery{hook: hook, req: req})
	}
}

// work runs q's deliveries one at a time until the Notifier closes.
// Deliveries still queued at that point are dropped.
func (n *Notifier) work(q *hookQueue) {
	defer n.workers.Done()

	for {
		select {
		case <-n.ctx.Done():
			for {
				if _, ok := q.pop(); !ok {
					return
				}
				n.pending.Done()
			}
		case <-q.wake:
		}

		for {
			d, ok := q.pop()
			if !ok {
				break
			}
			n.deliver(d)
			n.pending.Done()
		}
	}
}

func (n *Notifier) deliver(d delivery) {
	resp, err := n.executor.Execute(n.ctx, d.hook, &d.req)
	if err != nil {
		log.Warn("alert hook failed", "hook", d.hook.Manifest.Name, "event", d.req.Event, "error", err)
		return
	}
	if !resp.Success {
		log.Warn("alert hook reported failure", "hook", d.hook.Manifest.Name, "event", d.req.Event, "error", resp.Error)
	}
}

// Wait blocks until every queued delivery has finished.
func (n *Notifier) Wait() {
	n.pending.Wait()
}

// Close kills running hooks, drops queued deliveries and waits for the
// workers to exit.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.cancel()
	n.workers.Wait()
}
