package errors

import "sync"

// ErrorCollector gathers non-fatal problems found during a sweep, such
// as a doctor run or a template directory load, so they can be
// reported together instead of aborting at the first one.
type ErrorCollector struct {
	errors []error
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make([]error, 0),
	}
}

// AddError adds an error to the collector
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, err)
}

// GetAllErrors returns all collected errors
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	result := make([]error, len(ec.errors))
	copy(result, ec.errors)
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors) > 0
}

// Count returns the number of collected errors
func (ec *ErrorCollector) Count() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors)
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = ec.errors[:0]
}
