package source

import (
	"sync"

	"go.uber.org/zap"
)

// Runner schedules background work. Go must not block the caller.
type Runner interface {
	Go(fn func())
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(fn func())

// Go runs fn through f
func (f RunnerFunc) Go(fn func()) {
	f(fn)
}

// goRunner starts one goroutine per task
type goRunner struct{}

func (goRunner) Go(fn func()) {
	go fn()
}

// Pool runs tasks on a fixed set of worker goroutines. When every worker is
// busy and the buffer is full, or the pool is not running, the task falls back
// to its own goroutine so that Go never blocks.
type Pool struct {
	tasks       chan func()
	workerCount int
	wg          sync.WaitGroup
	logger      *zap.Logger
	started     bool
	shutdown    bool
	mu          sync.Mutex
}

// NewPool creates a pool with the given worker count
func NewPool(workerCount int, logger *zap.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		tasks:       make(chan func(), 64),
		workerCount: workerCount,
		logger:      logger,
	}
}

// Start starts the workers
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(worker int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in background task",
				zap.Int("worker", worker),
				zap.Any("panic", r))
		}
	}()
	task()
}

// Go hands fn to an idle worker
func (p *Pool) Go(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started && !p.shutdown {
		select {
		case p.tasks <- fn:
			return
		default:
		}
	}
	go p.run(-1, fn)
}

// Shutdown stops accepting tasks and waits for queued ones to finish
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.started || p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
