package server

import (
	"sync"
	"time"
)

type fault struct {
	status    int
	remaining int // negative fails forever
}

type faults struct {
	lock     sync.Mutex
	calls    map[string]int
	failures map[string]*fault
	delays   map[string]time.Duration
}

func newFaults() *faults {
	return &faults{
		calls:    make(map[string]int),
		failures: make(map[string]*fault),
		delays:   make(map[string]time.Duration),
	}
}

// take records a call to path and returns the injected status (0 for none)
// and delay for it.
func (f *faults) take(path string) (int, time.Duration) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.calls[path]++
	delay := f.delays[path]

	flt, ok := f.failures[path]
	if !ok {
		return 0, delay
	}
	if flt.remaining > 0 {
		flt.remaining--
		if flt.remaining == 0 {
			delete(f.failures, path)
		}
	}
	return flt.status, delay
}

// FailNext makes the next times requests to path answer status with a
// {"detail"} body. A negative times fails every request until ClearFaults.
func (s *Server) FailNext(path string, status, times int) {
	if times == 0 {
		return
	}
	s.faults.lock.Lock()
	defer s.faults.lock.Unlock()
	s.faults.failures[path] = &fault{status: status, remaining: times}
}

// Delay holds every request to path for d before handling it.
func (s *Server) Delay(path string, d time.Duration) {
	s.faults.lock.Lock()
	defer s.faults.lock.Unlock()
	if d <= 0 {
		delete(s.faults.delays, path)
		return
	}
	s.faults.delays[path] = d
}

// ClearFaults removes every injected failure and delay.
func (s *Server) ClearFaults() {
	s.faults.lock.Lock()
	defer s.faults.lock.Unlock()
	s.faults.failures = make(map[string]*fault)
	s.faults.delays = make(map[string]time.Duration)
}

// Calls returns how many requests reached path, including failed ones.
func (s *Server) Calls(path string) int {
	s.faults.lock.Lock()
	defer s.faults.lock.Unlock()
	return s.faults.calls[path]
}

func (s *Server) ResetCalls() {
	s.faults.lock.Lock()
	defer s.faults.lock.Unlock()
	s.faults.calls = make(map[string]int)
}
