package cpu

import (
	"sync"

	"github.com/achilleasa/prism/log"
)

const streamQueueSize = 64

type command struct {
	name string
	run  func() error

	// If set, the command result is sent to this channel instead of being
	// recorded as a pending stream error.
	doneChan chan error
}

// A command stream executed in submission order by a dedicated worker.
type stream struct {
	logger log.Logger

	wg sync.WaitGroup

	cmdChan chan command

	// A channel for signaling the worker to exit.
	closeChan chan struct{}

	errMutex   sync.Mutex
	pendingErr error
}

func newStream(logger log.Logger) *stream {
	s := &stream{
		logger:  logger,
		cmdChan: make(chan command, streamQueueSize),
	}
	s.startWorker()
	return s
}

// Spawn a go-routine to process stream commands.
func (s *stream) startWorker() {
	if s.closeChan != nil {
		return
	}
	s.closeChan = make(chan struct{})

	readyChan := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		close(readyChan)
		for {
			select {
			case cmd := <-s.cmdChan:
				err := cmd.run()
				if cmd.doneChan != nil {
					cmd.doneChan <- err
					continue
				}
				if err != nil {
					s.logger.Debugf("command %q failed: %v", cmd.name, err)
					s.setError(err)
				}
			case <-s.closeChan:
				// Ack close
				s.closeChan <- struct{}{}
				return
			}
		}
	}()

	// Wait for go-routine to start
	<-readyChan
}

func (s *stream) setError(err error) {
	s.errMutex.Lock()
	if s.pendingErr == nil {
		s.pendingErr = err
	}
	s.errMutex.Unlock()
}

// Queue a command without waiting for it to complete.
func (s *stream) enqueue(name string, fn func() error) {
	s.cmdChan <- command{name: name, run: fn}
}

// Queue a command and block until it completes. The command error is
// returned directly and does not affect the pending stream error.
func (s *stream) exec(name string, fn func() error) error {
	doneChan := make(chan error, 1)
	s.cmdChan <- command{name: name, run: fn, doneChan: doneChan}
	return <-doneChan
}

// Block until all queued commands complete and return the first error
// raised since the previous call.
func (s *stream) sync() error {
	s.exec("synchronize", func() error { return nil })

	s.errMutex.Lock()
	defer s.errMutex.Unlock()
	err := s.pendingErr
	s.pendingErr = nil
	return err
}

// Drain the queue and stop the worker.
func (s *stream) close() {
	if s.closeChan == nil {
		return
	}
	s.sync()
	s.closeChan <- struct{}{}

	// wait for worker to ack close and shutdown channel
	<-s.closeChan
	close(s.closeChan)
	s.closeChan = nil
	s.wg.Wait()
}
