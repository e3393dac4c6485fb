package build

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/toastdotdev/toast/internal/cache"
)

func TestMetricsRecordBuild(t *testing.T) {
	m := NewMetrics()

	m.RecordBuild(&Result{
		Modules: []string{"/src/a.js", "/src/b.js"},
		Stats:   cache.Stats{Hits: 1, StoreHits: 2, Misses: 1},
	}, 100*time.Millisecond, nil)
	m.RecordBuild(nil, 300*time.Millisecond, stderrors.New("compile failed"))

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.TotalBuilds)
	assert.Equal(t, int64(1), s.SuccessfulBuilds)
	assert.Equal(t, int64(1), s.FailedBuilds)
	assert.Equal(t, int64(2), s.ModulesCompiled)
	assert.Equal(t, int64(3), s.CacheHits)
	assert.Equal(t, 300*time.Millisecond, s.LastDuration)
	assert.Equal(t, 200*time.Millisecond, s.AverageDuration)
	assert.Equal(t, 400*time.Millisecond, s.TotalDuration)
	assert.InDelta(t, 50.0, m.SuccessRate(), 0.001)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, 0.0, m.SuccessRate())

	m.RecordBuild(&Result{Modules: []string{"/src/a.js"}}, time.Second, nil)
	m.Reset()

	s := m.Snapshot()
	assert.Zero(t, s.TotalBuilds)
	assert.Zero(t, s.ModulesCompiled)
	assert.Zero(t, s.AverageDuration)
	assert.Equal(t, 0.0, m.SuccessRate())
}

func TestMetricsConcurrentAccess(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.RecordBuild(&Result{Modules: []string{"/src/a.js"}}, time.Millisecond, nil)
		}()
		go func() {
			defer wg.Done()
			_ = m.Snapshot()
			_ = m.SuccessRate()
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, int64(50), s.TotalBuilds)
	assert.Equal(t, int64(50), s.ModulesCompiled)
	assert.Equal(t, 100.0, m.SuccessRate())
}
