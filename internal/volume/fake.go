package volume

import "sync"

// FakeController records raise calls for test assertions.
type FakeController struct {
	mu sync.Mutex

	// Signals contains every value passed to Raise.
	Signals []float64

	// RaiseError, if set, will be returned by Raise (the call is still recorded).
	RaiseError error
}

// NewFakeController creates a FakeController for testing.
func NewFakeController() *FakeController {
	return &FakeController{}
}

// Raise records the signal.
func (f *FakeController) Raise(signal float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Signals = append(f.Signals, signal)
	return f.RaiseError
}

// Calls returns a copy of the recorded signals.
func (f *FakeController) Calls() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.Signals...)
}

// Reset clears recorded calls.
func (f *FakeController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Signals = nil
	f.RaiseError = nil
}
