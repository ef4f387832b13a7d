// Package worker schedules turn execution over a bounded pool while keeping
// turns for the same session strictly sequential, so racing requests cannot
// interleave their cache and store writes.
package worker

import (
	"container/list"
	"errors"
	"sync"
)

// ErrDispatcherBusy is returned when the pending-job ceiling is reached.
var ErrDispatcherBusy = errors.New("dispatcher queue is full")

type Config struct {
	MaxWorkers int
	QueueSize  int
}

// Dispatcher hands queued jobs to workers. Sessions with pending work wait
// in a ready list; a session is only dispatchable when it has no job in
// flight, which is what serializes same-session turns.
type Dispatcher struct {
	mu        sync.Mutex
	queues    map[string][]func()
	ready     *list.List
	positions map[string]*list.Element
	inflight  map[string]bool
	pending   int

	sem       chan struct{}
	queueSize int
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	return &Dispatcher{
		queues:    make(map[string][]func()),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		inflight:  make(map[string]bool),
		sem:       make(chan struct{}, cfg.MaxWorkers),
		queueSize: cfg.QueueSize,
	}
}

// Submit enqueues one job under a session key. The job runs on a pool
// goroutine; the caller decides whether and how long to wait for its result.
// A job that outlives its caller still runs to completion.
func (d *Dispatcher) Submit(sessionKey string, job func()) error {
	d.mu.Lock()
	if d.pending >= d.queueSize {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	d.pending++
	d.queues[sessionKey] = append(d.queues[sessionKey], job)
	if !d.inflight[sessionKey] {
		if _, queued := d.positions[sessionKey]; !queued {
			d.positions[sessionKey] = d.ready.PushBack(sessionKey)
		}
	}
	d.mu.Unlock()

	d.dispatchReady()
	return nil
}

// dispatchReady drains the ready list while worker capacity remains.
func (d *Dispatcher) dispatchReady() {
	for {
		select {
		case d.sem <- struct{}{}:
		default:
			return
		}

		d.mu.Lock()
		elem := d.ready.Front()
		if elem == nil {
			d.mu.Unlock()
			<-d.sem
			return
		}
		key := elem.Value.(string)
		queue := d.queues[key]
		job := queue[0]
		if len(queue) == 1 {
			delete(d.queues, key)
		} else {
			d.queues[key] = queue[1:]
		}
		d.ready.Remove(elem)
		delete(d.positions, key)
		d.inflight[key] = true
		d.pending--
		d.mu.Unlock()

		go d.runJob(key, job)
	}
}

func (d *Dispatcher) runJob(key string, job func()) {
	job()
	<-d.sem

	d.mu.Lock()
	delete(d.inflight, key)
	if len(d.queues[key]) > 0 {
		if _, queued := d.positions[key]; !queued {
			d.positions[key] = d.ready.PushBack(key)
		}
	}
	d.mu.Unlock()

	d.dispatchReady()
}
