package build

import (
	"sync"
	"time"
)

// Metrics tracks orchestrator activity across runs.
type Metrics struct {
	TotalBuilds      int64         `json:"total_builds"`
	SuccessfulBuilds int64         `json:"successful_builds"`
	FailedBuilds     int64         `json:"failed_builds"`
	ModulesCompiled  int64         `json:"modules_compiled"`
	CacheHits        int64         `json:"cache_hits"`
	LastDuration     time.Duration `json:"last_duration"`
	AverageDuration  time.Duration `json:"average_duration"`
	TotalDuration    time.Duration `json:"total_duration"`
	mutex            sync.RWMutex
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordBuild records one run. result is nil for failed runs.
func (m *Metrics) RecordBuild(result *Result, duration time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalBuilds++
	m.TotalDuration += duration
	m.LastDuration = duration

	if err != nil {
		m.FailedBuilds++
	} else {
		m.SuccessfulBuilds++
	}
	if result != nil {
		m.ModulesCompiled += int64(len(result.Modules))
		m.CacheHits += result.Stats.Hits + result.Stats.StoreHits
	}

	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalBuilds)
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return Metrics{
		TotalBuilds:      m.TotalBuilds,
		SuccessfulBuilds: m.SuccessfulBuilds,
		FailedBuilds:     m.FailedBuilds,
		ModulesCompiled:  m.ModulesCompiled,
		CacheHits:        m.CacheHits,
		LastDuration:     m.LastDuration,
		AverageDuration:  m.AverageDuration,
		TotalDuration:    m.TotalDuration,
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalBuilds = 0
	m.SuccessfulBuilds = 0
	m.FailedBuilds = 0
	m.ModulesCompiled = 0
	m.CacheHits = 0
	m.LastDuration = 0
	m.AverageDuration = 0
	m.TotalDuration = 0
}

// SuccessRate returns the success rate as a percentage
func (m *Metrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalBuilds == 0 {
		return 0.0
	}

	return float64(m.SuccessfulBuilds) / float64(m.TotalBuilds) * 100.0
}
