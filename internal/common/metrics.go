package common

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks decode throughput for one run. Counters are mirrored into a
// private Prometheus registry so a run can leave a node-exporter textfile.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	end        time.Time
	bytes      int64
	totalBytes int64
	frames     int64
	failures   int64
	resyncs    int64

	registry      *prometheus.Registry
	framesTotal   prometheus.Counter
	bytesTotal    prometheus.Counter
	failuresTotal *prometheus.CounterVec
	resyncsTotal  prometheus.Counter
	duration      prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klvgate_frames_decoded_total",
			Help: "Frames decoded successfully.",
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klvgate_decoded_bytes_total",
			Help: "Bytes of KLV packets processed.",
		}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klvgate_frame_failures_total",
			Help: "Frames rejected by the codec, by error kind.",
		}, []string{"kind"}),
		resyncsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klvgate_stream_resyncs_total",
			Help: "Times the stream splitter skipped bytes to find a key.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "klvgate_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}
	m.registry.MustRegister(m.framesTotal, m.bytesTotal, m.failuresTotal, m.resyncsTotal, m.duration)
	return m
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
		m.duration.Set(m.end.Sub(m.start).Seconds())
	}
	m.mu.Unlock()
}

func (m *Metrics) AddFrame(size int64) {
	if m == nil || size <= 0 {
		return
	}
	m.mu.Lock()
	m.bytes += size
	m.frames++
	m.mu.Unlock()
	m.framesTotal.Inc()
	m.bytesTotal.Add(float64(size))
}

func (m *Metrics) AddFailure(kind string, size int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.failures++
	if size > 0 {
		m.bytes += size
	}
	m.mu.Unlock()
	m.failuresTotal.WithLabelValues(kind).Inc()
	if size > 0 {
		m.bytesTotal.Add(float64(size))
	}
}

func (m *Metrics) AddResyncs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	m.resyncs += int64(n)
	m.mu.Unlock()
	m.resyncsTotal.Add(float64(n))
}

func (m *Metrics) SetTotalBytes(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalBytes = total
	m.mu.Unlock()
}

// WriteTextfile stores the counters in Prometheus text format at path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:   m.elapsedLocked(),
		Bytes:      m.bytes,
		TotalBytes: m.totalBytes,
		Frames:     m.frames,
		Failures:   m.failures,
		Resyncs:    m.resyncs,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration   time.Duration
	Bytes      int64
	TotalBytes int64
	Frames     int64
	Failures   int64
	Resyncs    int64
}

func (s MetricsSnapshot) FramesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Frames+s.Failures) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	ratio := float64(s.Bytes) / float64(s.TotalBytes)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

func formatProgressLine(s MetricsSnapshot) string {
	if s.TotalBytes > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Progress: %6.2f%% (%s / %s) %d frames, %d failed", pct, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes), s.Frames, s.Failures)
	}
	return fmt.Sprintf("Processed: %s %d frames, %d failed", FormatBytes(s.Bytes), s.Frames, s.Failures)
}

func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				if pad := lastLen - len(line); pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
