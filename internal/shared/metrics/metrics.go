package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	sessionsStartedTotal atomic.Uint64
	sessionsDeniedTotal  atomic.Uint64
	roundsGeneratedTotal atomic.Uint64

	providerRetriesTotal   atomic.Uint64
	providerFailoversTotal atomic.Uint64
	providerFailuresTotal  atomic.Uint64

	generationDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncSessionStarted increments the opened-sessions counter.
func IncSessionStarted() {
	sessionsStartedTotal.Add(1)
}

// IncSessionDenied increments the credit-deny counter.
func IncSessionDenied() {
	sessionsDeniedTotal.Add(1)
}

// IncRoundGenerated increments the completed-rounds counter.
func IncRoundGenerated() {
	roundsGeneratedTotal.Add(1)
}

// IncProviderRetry increments the provider retry counter.
func IncProviderRetry() {
	providerRetriesTotal.Add(1)
}

// IncProviderFailover increments the credential failover counter.
func IncProviderFailover() {
	providerFailoversTotal.Add(1)
}

// IncProviderFailure increments the exhausted-invoke counter.
func IncProviderFailure() {
	providerFailuresTotal.Add(1)
}

// ObserveGenerationDurationMs records one provider invocation duration
// in milliseconds, retries included.
func ObserveGenerationDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	generationDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "sessions_started_total", "Total tailoring sessions opened", sessionsStartedTotal.Load())
	writeCounter(&buf, "sessions_denied_total", "Total sessions denied for missing credits", sessionsDeniedTotal.Load())
	writeCounter(&buf, "rounds_generated_total", "Total rounds appended across all sessions", roundsGeneratedTotal.Load())
	writeCounter(&buf, "provider_retries_total", "Total provider retries after overload", providerRetriesTotal.Load())
	writeCounter(&buf, "provider_failovers_total", "Total switches to the fallback credential", providerFailoversTotal.Load())
	writeCounter(&buf, "provider_failures_total", "Total provider invocations that gave up", providerFailuresTotal.Load())
	writeHistogram(&buf, "generation_duration_ms", "Provider invocation duration in milliseconds", generationDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
