package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type collector interface {
	write(sb *strings.Builder)
}

type counterVec struct {
	name   string
	help   string
	labels []string

	mu     sync.RWMutex
	values map[string]float64
}

type gaugeVec struct {
	name   string
	help   string
	labels []string

	mu     sync.RWMutex
	values map[string]float64
}

type histogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64

	mu     sync.RWMutex
	values map[string]*histogramValue
}

type histogramValue struct {
	counts []uint64
	sum    float64
	total  uint64
}

var defaultBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

var (
	collectors []collector

	cipherOps     = newCounterVec("fbc_operations_total", "Encrypt and decrypt calls served by the FBC engine.", []string{"op", "mode"})
	cipherBytes   = newCounterVec("fbc_processed_bytes_total", "Input bytes processed by the FBC engine.", []string{"op"})
	cipherErrors  = newCounterVec("fbc_operation_errors_total", "FBC operations that failed, by reason.", []string{"op", "reason"})
	cipherLatency = newHistogramVec("fbc_operation_duration_seconds", "Time spent inside the FBC engine.", []string{"op", "mode"})
	keysGenerated = newCounterVec("fbc_keys_generated_total", "Permutation keys generated.", nil)
	rpcRequests   = newCounterVec("fbc_rpc_requests_total", "Total number of RPC requests handled by fbcryptd.", []string{"method"})
	rpcErrors     = newCounterVec("fbc_rpc_errors_total", "Total number of RPC errors returned by fbcryptd.", []string{"method", "code"})
	rpcLatency    = newHistogramVec("fbc_rpc_duration_seconds", "Latency of RPC handlers broken down by method and status code.", []string{"method", "code"})
	rpcInFlight   = newGaugeVec("fbc_rpc_in_flight", "RPC requests currently being served.", nil)

	totalRequests uint64
)

func init() {
	collectors = []collector{cipherOps, cipherBytes, cipherErrors, cipherLatency, keysGenerated, rpcRequests, rpcErrors, rpcLatency, rpcInFlight}
}

func newCounterVec(name, help string, labels []string) *counterVec {
	return &counterVec{name: name, help: help, labels: labels, values: make(map[string]float64)}
}

func newGaugeVec(name, help string, labels []string) *gaugeVec {
	return &gaugeVec{name: name, help: help, labels: labels, values: make(map[string]float64)}
}

func newHistogramVec(name, help string, labels []string) *histogramVec {
	return &histogramVec{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: defaultBuckets,
		values:  make(map[string]*histogramValue),
	}
}

func labelKey(labels, values []string) string {
	if len(values) != len(labels) {
		panic(fmt.Sprintf("expected %d labels, got %d", len(labels), len(values)))
	}
	return strings.Join(values, "\xff")
}

func (cv *counterVec) AddWith(delta float64, values ...string) {
	key := labelKey(cv.labels, values)
	cv.mu.Lock()
	cv.values[key] += delta
	cv.mu.Unlock()
}

func (cv *counterVec) IncWith(values ...string) {
	cv.AddWith(1, values...)
}

func (cv *counterVec) write(sb *strings.Builder) {
	writeHeader(sb, cv.name, cv.help, "counter")
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	for _, key := range sortedKeys(cv.values) {
		sb.WriteString(cv.name)
		writeLabels(sb, cv.labels, key, "")
		fmt.Fprintf(sb, " %g\n", cv.values[key])
	}
}

func (gv *gaugeVec) Add(values []string, delta float64) {
	key := labelKey(gv.labels, values)
	gv.mu.Lock()
	gv.values[key] += delta
	gv.mu.Unlock()
}

func (gv *gaugeVec) write(sb *strings.Builder) {
	writeHeader(sb, gv.name, gv.help, "gauge")
	gv.mu.RLock()
	defer gv.mu.RUnlock()
	for _, key := range sortedKeys(gv.values) {
		sb.WriteString(gv.name)
		writeLabels(sb, gv.labels, key, "")
		fmt.Fprintf(sb, " %g\n", gv.values[key])
	}
}

func (hv *histogramVec) Observe(values []string, sample float64) {
	key := labelKey(hv.labels, values)
	hv.mu.Lock()
	defer hv.mu.Unlock()
	entry, ok := hv.values[key]
	if !ok {
		entry = &histogramValue{counts: make([]uint64, len(hv.buckets)+1)}
		hv.values[key] = entry
	}
	entry.sum += sample
	entry.total++
	idx := sort.SearchFloat64s(hv.buckets, sample)
	entry.counts[idx]++
}

func (hv *histogramVec) write(sb *strings.Builder) {
	writeHeader(sb, hv.name, hv.help, "histogram")
	hv.mu.RLock()
	defer hv.mu.RUnlock()
	keys := make([]string, 0, len(hv.values))
	for k := range hv.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		entry := hv.values[key]
		cumulative := uint64(0)
		for i, upper := range hv.buckets {
			cumulative += entry.counts[i]
			sb.WriteString(hv.name + "_bucket")
			writeLabels(sb, hv.labels, key, fmt.Sprintf("%g", upper))
			fmt.Fprintf(sb, " %d\n", cumulative)
		}
		cumulative += entry.counts[len(hv.buckets)]
		sb.WriteString(hv.name + "_bucket")
		writeLabels(sb, hv.labels, key, "+Inf")
		fmt.Fprintf(sb, " %d\n", cumulative)

		sb.WriteString(hv.name + "_sum")
		writeLabels(sb, hv.labels, key, "")
		fmt.Fprintf(sb, " %g\n", entry.sum)
		sb.WriteString(hv.name + "_count")
		writeLabels(sb, hv.labels, key, "")
		fmt.Fprintf(sb, " %d\n", entry.total)
	}
}

func sortedKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeLabels renders {a="x",b="y"} for key, adding le when it is set.
func writeLabels(sb *strings.Builder, labels []string, key, le string) {
	if len(labels) == 0 && le == "" {
		return
	}
	var parts []string
	if len(labels) > 0 {
		parts = strings.Split(key, "\xff")
	}
	sb.WriteString("{")
	for i, label := range labels {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(label)
		sb.WriteString("=\"")
		sb.WriteString(escapeLabel(parts[i]))
		sb.WriteString("\"")
	}
	if le != "" {
		if len(labels) > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("le=\"")
		sb.WriteString(le)
		sb.WriteString("\"")
	}
	sb.WriteString("}")
}

func writeHeader(sb *strings.Builder, name, help, metricType string) {
	sb.WriteString("# HELP ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(help)
	sb.WriteString("\n# TYPE ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(metricType)
	sb.WriteString("\n")
}

func escapeLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\n", "\\n")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}

// Handler exposes the metrics registry as an http.Handler compatible with Prometheus.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var sb strings.Builder
		for _, collector := range collectors {
			collector.write(&sb)
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(sb.String()))
	})
}

// Mode labels an engine call by whether the block framer ran.
func Mode(threads int) string {
	if threads > 1 {
		return "parallel"
	}
	return "single"
}

// ObserveCipher records one engine call of op ("encrypt" or "decrypt") over
// size input bytes.
func ObserveCipher(op string, threads, size int, dur time.Duration) {
	mode := Mode(threads)
	cipherOps.IncWith(op, mode)
	cipherBytes.AddWith(float64(size), op)
	cipherLatency.Observe([]string{op, mode}, dur.Seconds())
}

// RecordCipherError counts a failed engine call.
func RecordCipherError(op, reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	cipherErrors.IncWith(op, reason)
}

// RecordKeyGenerated counts a freshly generated key.
func RecordKeyGenerated() {
	keysGenerated.IncWith()
}

// RecordRPCRequest increments the request counter for a method.
func RecordRPCRequest(method string) {
	rpcRequests.IncWith(method)
	atomic.AddUint64(&totalRequests, 1)
}

// RecordRPCError increments the error counter for a method and status code.
func RecordRPCError(method, code string) {
	rpcErrors.IncWith(method, code)
}

// ObserveRPCLatency records the duration spent serving an RPC method and tags it by status code.
func ObserveRPCLatency(method, code string, dur time.Duration) {
	rpcLatency.Observe([]string{method, code}, dur.Seconds())
}

// TrackInFlight marks an RPC as started; the returned function marks it done.
func TrackInFlight() (done func()) {
	rpcInFlight.Add(nil, 1)
	return func() {
		rpcInFlight.Add(nil, -1)
	}
}

// TotalRequests returns the total number of RPC requests served since process start.
func TotalRequests() uint64 {
	return atomic.LoadUint64(&totalRequests)
}
