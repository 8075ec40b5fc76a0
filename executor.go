package ripple

import (
	"container/list"
	"fmt"
	"sync"
)

// Queue is a thread-safe unbounded FIFO.
type Queue[T any] struct {
	mu   sync.Mutex
	list *list.List
}

// NewQueue creates and returns a new empty Queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{list: list.New()}
}

// Enqueue adds an item to the end of the queue.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.list.PushBack(item)
}

// Dequeue removes and returns the front item in the queue.
// It returns false if the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.list.Len() == 0 {
		var zero T
		return zero, false
	}
	front := q.list.Front()
	q.list.Remove(front)
	return front.Value.(T), true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

// Executor runs submitted tasks one at a time in submission order on a
// single goroutine. A panicking task is logged and does not stop the executor.
type Executor struct {
	name   string
	tasks  *Queue[func()]
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	logger LoggerAdapter

	mu      sync.Mutex
	stopped bool
}

// NewExecutor starts an executor goroutine.
func NewExecutor(name string, logger LoggerAdapter) *Executor {
	e := &Executor{
		name:   name,
		tasks:  NewQueue[func()](),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go e.loop()
	return e
}

// Submit queues task. It returns false after Stop.
func (e *Executor) Submit(task func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.tasks.Enqueue(task)
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// Stop rejects new tasks, runs the ones already queued and waits for the
// goroutine to exit.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.stopped = true
	close(e.stop)
	e.mu.Unlock()
	<-e.done
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		e.runPending()
		select {
		case <-e.wake:
		case <-e.stop:
			e.runPending()
			return
		}
	}
}

func (e *Executor) runPending() {
	for {
		task, ok := e.tasks.Dequeue()
		if !ok {
			return
		}
		e.run(task)
	}
}

func (e *Executor) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked", "executor", e.name, "panic", fmt.Sprint(r))
		}
	}()
	task()
}
