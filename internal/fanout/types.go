package fanout

import (
	"time"

	"remarker/internal/endpoint"
)

// Task is the work item for one endpoint in one cycle.
type Task struct {
	Endpoint endpoint.Endpoint
	Topic    string
	Message  string
}

// Result is the outcome of one endpoint's delivery.
type Result struct {
	Endpoint endpoint.Endpoint
	Err      error
	Took     time.Duration
}

func (r Result) OK() bool { return r.Err == nil }

// Report summarizes one cycle.
type Report struct {
	Cycle     uint64
	Message   string
	Skipped   bool
	Results   []Result
	StartedAt time.Time
	Took      time.Duration
}

// Counts returns the number of successful and failed deliveries.
func (r Report) Counts() (ok, failed int) {
	for _, res := range r.Results {
		if res.Err == nil {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Failures lists the endpoints that were not reached.
func (r Report) Failures() []endpoint.Endpoint {
	var out []endpoint.Endpoint
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Endpoint)
		}
	}
	return out
}
