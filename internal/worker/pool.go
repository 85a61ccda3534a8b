package worker

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/getsentry/sentry-go"
)

// ErrPanic wraps a panic recovered from a pool job.
var ErrPanic = errors.New("worker panic")

// Pool is a fixed set of goroutines for CPU-bound per-actor work.
type Pool struct {
	jobs chan func()
	size int
	once sync.Once
}

// NewPool starts size workers, or one per CPU when size <= 0.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan func(), size), size: size}
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer sentry.Recover()

	for f := range p.jobs {
		f()
	}
}

func (p *Pool) Size() int { return p.size }

// Run calls fn(i) for i in [0, n) across the workers and waits for all of
// them. errs[i] is fn's result for i; a panic in fn becomes an ErrPanic.
func (p *Pool) Run(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.jobs <- func() {
			defer wg.Done()
			errs[i] = call(i, fn)
		}
	}
	wg.Wait()
	return errs
}

func call(i int, fn func(int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			hub := sentry.CurrentHub().Clone()
			hub.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("job", strconv.Itoa(i))
			})
			hub.Recover(r)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(i)
}

// Close stops the workers after queued jobs finish.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.jobs) })
}
