package smoke

import (
	"time"

	"github.com/last-emo-boy/market-smoke/pkg/client"
)

// StepResult is one executed call. Err is set when no HTTP response was received.
type StepResult struct {
	Seq      int
	Name     string
	Method   string
	Path     string
	Response *client.Response
	Err      error
}

// StatusCode returns the response status, or 0 when the call failed
func (s StepResult) StatusCode() int {
	if s.Response == nil {
		return 0
	}
	return s.Response.StatusCode
}

// Report summarises a smoke run
type Report struct {
	RunID       string
	BaseURL     string
	TokenSource string
	ProductID   string
	Aborted     bool
	Steps       []StepResult
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Calls returns the executed step names in call order
func (r *Report) Calls() []string {
	names := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		names = append(names, s.Name)
	}
	return names
}

// Failures counts steps without a response or with a non-2xx status
func (r *Report) Failures() int {
	n := 0
	for _, s := range r.Steps {
		if s.Response == nil || !s.Response.Success() {
			n++
		}
	}
	return n
}
