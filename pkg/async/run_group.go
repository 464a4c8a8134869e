package async

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tryfix/log"
)

// Fn is a long-running process (eg: an http listener) that can be run asynchronously.
type Fn func(*Opts) error

// Opts contains options for running a process.
type Opts struct {
	// stopping is closed when the group starts shutting down.
	stopping <-chan struct{}

	readyOnce sync.Once

	// ready is closed when the process is ready to serve(eg: listener bound).
	ready chan struct{}
}

// Stopping returns a channel that is closed when the process should stop.
func (opts *Opts) Stopping() <-chan struct{} {
	return opts.stopping
}

// Ready signals that the process is ready to serve.
func (opts *Opts) Ready() {
	opts.readyOnce.Do(func() {
		close(opts.ready)
	})
}

var ErrInterrupted = errors.New(`interrupted`)

type process struct {
	name string
	fn   Fn
}

// RunGroup runs a group of named processes and stops all of them as soon as one fails or Stop is called.
type RunGroup struct {
	processes    []process
	wg           *sync.WaitGroup
	readyWg      *sync.WaitGroup
	stopping     chan struct{}
	stopped      chan struct{}
	shutDownOnce *sync.Once
	mu           sync.Mutex
	err          error
	logger       log.Logger
	shuttingDown bool
}

func NewRunGroup(logger log.Logger) *RunGroup {
	return &RunGroup{
		wg:           new(sync.WaitGroup),
		readyWg:      new(sync.WaitGroup),
		stopping:     make(chan struct{}),
		stopped:      make(chan struct{}),
		shutDownOnce: &sync.Once{},
		logger:       logger.NewLog(log.Prefixed(`RunGroup`)),
	}
}

// Add adds a process to the RunGroup. Processes are started when Run is called.
// Note: RunGroup does not support adding processes to a running group.
func (tg *RunGroup) Add(name string, fn Fn) *RunGroup {
	tg.readyWg.Add(1)
	tg.processes = append(tg.processes, process{name: name, fn: fn})
	return tg
}

// Run blocks until every process has returned and reports the first process error.
func (tg *RunGroup) Run() error {
	notifyErrOnce := &sync.Once{}

	tg.wg.Add(len(tg.processes))

	for _, p := range tg.processes {
		ready := make(chan struct{})

		go func() {
			<-ready
			tg.readyWg.Done()
		}()

		go func(p process) {
			defer LogPanicTrace(tg.logger)

			opts := &Opts{
				stopping: tg.stopping,
				ready:    ready,
			}

			tg.logger.Info(fmt.Sprintf(`Process [%s] starting...`, p.name))
			if err := p.fn(opts); err != nil {
				// Only the first error needs to be notified
				notifyErrOnce.Do(func() {
					tg.mu.Lock()
					tg.err = fmt.Errorf(`process [%s] failed: %w`, p.name, err)
					tg.mu.Unlock()
				})
				tg.notifyShutDown(err)
			}

			// When a process returns make it ready anyway
			opts.Ready()
			tg.logger.Info(fmt.Sprintf(`Process [%s] stopped`, p.name))
			tg.wg.Done()
		}(p)
	}

	tg.wg.Wait()

	close(tg.stopped)

	return tg.error()
}

func (tg *RunGroup) error() error {
	tg.mu.Lock()
	defer tg.mu.Unlock()

	return tg.err
}

func (tg *RunGroup) notifyShutDown(err error) {
	tg.shutDownOnce.Do(func() {
		if err != nil {
			tg.logger.Error(fmt.Sprintf(`Processes stopping due to %s`, err))
		} else {
			tg.logger.Info(`Interrupted, Processes stopping...`)
		}

		tg.mu.Lock()
		tg.shuttingDown = true
		tg.mu.Unlock()
		close(tg.stopping)
	})
}

// Ready blocks until every process is ready. It returns ErrInterrupted when the group was stopped before that.
func (tg *RunGroup) Ready() error {
	tg.readyWg.Wait()

	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.err == nil && tg.shuttingDown {
		return ErrInterrupted
	}

	return tg.err
}

// Stop signals every process to stop and waits until Run returns.
func (tg *RunGroup) Stop() {
	tg.notifyShutDown(nil)
	defer tg.logger.Info(`Processes stopped`)

	<-tg.stopped
}
