package errors

import (
	"sort"
	"sync"
)

// ErrorCollector collects per-module failures from concurrent compile workers.
// Reporting is ordered by source ID so the first error is reproducible no
// matter which worker finished first.
type ErrorCollector struct {
	bySource map[string]error
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		bySource: make(map[string]error),
	}
}

// Add records the failure for a source. Only the first failure per source is kept.
func (ec *ErrorCollector) Add(sourceID string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if _, exists := ec.bySource[sourceID]; exists {
		return
	}
	ec.bySource[sourceID] = err
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.bySource) > 0
}

// Len returns the number of failed sources.
func (ec *ErrorCollector) Len() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.bySource)
}

// First returns the error of the lexicographically smallest failed source.
func (ec *ErrorCollector) First() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	if len(ec.bySource) == 0 {
		return nil
	}
	return ec.bySource[ec.sortedSourcesLocked()[0]]
}

// All returns every collected error ordered by source ID.
func (ec *ErrorCollector) All() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	ids := ec.sortedSourcesLocked()
	result := make([]error, 0, len(ids))
	for _, id := range ids {
		result = append(result, ec.bySource[id])
	}
	return result
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.bySource = make(map[string]error)
}

func (ec *ErrorCollector) sortedSourcesLocked() []string {
	ids := make([]string, 0, len(ec.bySource))
	for id := range ec.bySource {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
