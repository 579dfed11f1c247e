package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu               sync.Mutex
	requestCount     map[string]int64
	requestLatencyMs map[string]int64
	errorCount       map[string]int64
	transitionCount  map[string]int64
	escalationCount  map[string]int64
	droppedEvents    map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:     make(map[string]int64),
		requestLatencyMs: make(map[string]int64),
		errorCount:       make(map[string]int64),
		transitionCount:  make(map[string]int64),
		escalationCount:  make(map[string]int64),
		droppedEvents:    make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestLatencyMs[key] += duration.Milliseconds()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTransition counts a lifecycle action by outcome ("ok" or an error code).
func (m *Metrics) RecordTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCount[action+"|"+outcome]++
}

// RecordEscalation counts escalations by the role the ticket moved to.
func (m *Metrics) RecordEscalation(role string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalationCount[role]++
}

// RecordDroppedEvent counts notifications lost to a full queue.
func (m *Metrics) RecordDroppedEvent(kind string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.droppedEvents[kind]++
}

// Counter is one labelled value in a snapshot.
type Counter struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// Snapshot is a point-in-time copy of every counter, sorted by key.
type Snapshot struct {
	Requests         []Counter `json:"requests"`
	RequestLatencyMs []Counter `json:"request_latency_ms"`
	Errors           []Counter `json:"errors"`
	Transitions      []Counter `json:"transitions"`
	Escalations      []Counter `json:"escalations"`
	DroppedEvents    []Counter `json:"dropped_events"`
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:         counters(m.requestCount),
		RequestLatencyMs: counters(m.requestLatencyMs),
		Errors:           counters(m.errorCount),
		Transitions:      counters(m.transitionCount),
		Escalations:      counters(m.escalationCount),
		DroppedEvents:    counters(m.droppedEvents),
	}
}

func counters(src map[string]int64) []Counter {
	out := make([]Counter, 0, len(src))
	for k, v := range src {
		out = append(out, Counter{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
