package metrics

import (
	"sync"
	"time"
)

// Collector tracks request, model-stream and extraction counters in memory.
type Collector struct {
	mu sync.RWMutex

	// Request metrics
	totalRequests      map[string]int64 // by route
	totalRequestsDur   map[string]int64 // total duration in ms
	requestErrors      map[string]int64 // by route
	requestsInProgress map[string]int64

	// Model stream metrics, keyed by operation (summary, ask, challenge, evaluate)
	modelCalls     map[string]int64
	modelErrors    map[string]int64
	modelLatency   map[string]int64 // total latency in ms
	fragments      int64
	fragmentBytes  int64
	malformedLines int64
	noBody         int64
	incomplete     int64 // streams that ended without a done frame
	promptTokens   int64
	evalTokens     int64

	// Extraction outcomes, keyed by "<kind>:<format>"
	extractions map[string]int64

	uploads     int64
	uploadBytes int64

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		totalRequests:      make(map[string]int64),
		totalRequestsDur:   make(map[string]int64),
		requestErrors:      make(map[string]int64),
		requestsInProgress: make(map[string]int64),
		modelCalls:         make(map[string]int64),
		modelErrors:        make(map[string]int64),
		modelLatency:       make(map[string]int64),
		extractions:        make(map[string]int64),
		startTime:          time.Now(),
	}
}

// RecordRequest records a completed request to a route.
func (c *Collector) RecordRequest(route string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests[route]++
	c.totalRequestsDur[route] += duration.Milliseconds()
}

// RecordError records an error response for a route.
func (c *Collector) RecordError(route string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestErrors[route]++
}

// RecordRequestStart increments in-progress requests.
func (c *Collector) RecordRequestStart(route string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestsInProgress[route]++
}

// RecordRequestEnd decrements in-progress requests.
func (c *Collector) RecordRequestEnd(route string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestsInProgress[route]--
}

// StreamStats is the per-call outcome reported after a model stream ends.
type StreamStats struct {
	Fragments       int
	Bytes           int
	Malformed       int
	Done            bool
	NoBody          bool
	PromptEvalCount int
	EvalCount       int
}

// RecordModelCall records one model stream for operation.
func (c *Collector) RecordModelCall(operation string, duration time.Duration, stats StreamStats, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.modelCalls[operation]++
	c.modelLatency[operation] += duration.Milliseconds()
	if err != nil {
		c.modelErrors[operation]++
	}
	c.fragments += int64(stats.Fragments)
	c.fragmentBytes += int64(stats.Bytes)
	c.malformedLines += int64(stats.Malformed)
	c.promptTokens += int64(stats.PromptEvalCount)
	c.evalTokens += int64(stats.EvalCount)
	if stats.NoBody {
		c.noBody++
	} else if !stats.Done && err == nil {
		c.incomplete++
	}
}

// RecordExtraction records which output format an extractor recognised.
func (c *Collector) RecordExtraction(kind, format string) {
	if format == "" {
		format = "none"
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.extractions[kind+":"+format]++
}

// RecordUpload records an accepted upload of size bytes.
func (c *Collector) RecordUpload(size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.uploads++
	c.uploadBytes += size
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Uptime             int64            `json:"uptime_seconds"`
	TotalRequests      map[string]int64 `json:"total_requests"`
	TotalRequestsDur   map[string]int64 `json:"total_requests_duration_ms"`
	RequestErrors      map[string]int64 `json:"request_errors"`
	RequestsInProgress map[string]int64 `json:"requests_in_progress"`
	ModelCalls         map[string]int64 `json:"model_calls"`
	ModelErrors        map[string]int64 `json:"model_errors"`
	ModelLatency       map[string]int64 `json:"model_latency_ms"`
	Fragments          int64            `json:"stream_fragments"`
	FragmentBytes      int64            `json:"stream_bytes"`
	MalformedLines     int64            `json:"stream_malformed_lines"`
	NoBody             int64            `json:"stream_no_body"`
	Incomplete         int64            `json:"stream_incomplete"`
	PromptTokens       int64            `json:"prompt_tokens"`
	EvalTokens         int64            `json:"eval_tokens"`
	Extractions        map[string]int64 `json:"extractions"`
	Uploads            int64            `json:"uploads"`
	UploadBytes        int64            `json:"upload_bytes"`
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Uptime:             int64(time.Since(c.startTime).Seconds()),
		TotalRequests:      copyMap(c.totalRequests),
		TotalRequestsDur:   copyMap(c.totalRequestsDur),
		RequestErrors:      copyMap(c.requestErrors),
		RequestsInProgress: copyMap(c.requestsInProgress),
		ModelCalls:         copyMap(c.modelCalls),
		ModelErrors:        copyMap(c.modelErrors),
		ModelLatency:       copyMap(c.modelLatency),
		Fragments:          c.fragments,
		FragmentBytes:      c.fragmentBytes,
		MalformedLines:     c.malformedLines,
		NoBody:             c.noBody,
		Incomplete:         c.incomplete,
		PromptTokens:       c.promptTokens,
		EvalTokens:         c.evalTokens,
		Extractions:        copyMap(c.extractions),
		Uploads:            c.uploads,
		UploadBytes:        c.uploadBytes,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
