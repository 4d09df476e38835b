package presence

import "sync"

// Dispatcher runs notification tasks after the transition that produced them
// has completed. Tasks must run one at a time, in the order posted.
// Post must not run the task before returning: it is called with the engine
// locked.
type Dispatcher interface {
	Post(task func())
}

// Queue is a Dispatcher backed by a single goroutine and an unbounded FIFO.
// Post never blocks.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewQueue starts a Queue.
func NewQueue() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Post enqueues task. Tasks posted after Close are dropped.
func (q *Queue) Post(task func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close runs the tasks already queued and stops the goroutine. It must not be
// called from inside a task.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		closed := q.closed
		q.mu.Unlock()

		for _, task := range tasks {
			task()
		}
		if len(tasks) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

// ManualQueue is a Dispatcher whose tasks only run when Drain is called.
// It lets tests observe the state between a transition and its notifications.
type ManualQueue struct {
	mu    sync.Mutex
	tasks []func()
}

// NewManualQueue creates an empty ManualQueue.
func NewManualQueue() *ManualQueue {
	return &ManualQueue{}
}

// Post records task.
func (q *ManualQueue) Post(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

// Len returns the number of tasks waiting.
func (q *ManualQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Drain runs queued tasks, including any they post, until none remain.
// It returns the number of tasks run.
func (q *ManualQueue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return n
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
		n++
	}
}
