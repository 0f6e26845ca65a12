package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tabx-cli/tabx/internal/logging"
)

// ErrTimeout is returned when a job does not reach a terminal status
// within the poll attempt budget.
var ErrTimeout = errors.New("export timeout")

// JobFailedError carries the server-reported failure message.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return "export failed"
	}
	return "export failed: " + e.Message
}

// State is a phase of the polling state machine. Polling is the only
// non-terminal state; there are no backward transitions.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateCompleted
	StateFailed
	StateTimedOut
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Monitor submits export requests and resolves them to downloaded files.
type Monitor struct {
	svc          Service
	pollInterval time.Duration
	maxAttempts  int
	progress     bool
	state        State
}

// NewMonitor creates a Monitor. interval and attempts fall back to the
// workflow defaults (2s, 30 attempts) when non-positive.
func NewMonitor(svc Service, interval time.Duration, attempts int) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if attempts <= 0 {
		attempts = 30
	}
	return &Monitor{
		svc:          svc,
		pollInterval: interval,
		maxAttempts:  attempts,
		state:        StateIdle,
	}
}

// State returns the monitor's current polling state.
func (m *Monitor) State() State {
	return m.state
}

// Submit sends the export request and returns the server-assigned job ID.
// The request is validated first; an invalid request never reaches the wire.
func (m *Monitor) Submit(ctx context.Context, req *Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	jobID, err := m.svc.CreateExport(ctx, req)
	if err != nil {
		return "", fmt.Errorf("creating export job: %w", err)
	}

	logging.Info("export job %s created for table %s (%s, %d columns)",
		jobID, req.Table, req.Format, len(req.Columns))
	return jobID, nil
}

// Poll drives the job to a terminal state: it fetches the status, then
// waits pollInterval between attempts, up to maxAttempts. At most one
// status request is in flight at a time. Cancelling ctx stops the loop
// cleanly with ctx.Err().
func (m *Monitor) Poll(ctx context.Context, jobID string) (*JobStatus, error) {
	m.state = StatePolling

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			m.state = StateIdle
			return nil, err
		}

		status, err := m.svc.ExportStatus(ctx, jobID)
		if err != nil {
			m.state = StateFailed
			return nil, fmt.Errorf("polling job %s: %w", jobID, err)
		}

		switch status.Status {
		case StatusCompleted:
			m.state = StateCompleted
			logging.Debug("job %s completed after %d poll(s)", jobID, attempt)
			return status, nil
		case StatusFailed:
			m.state = StateFailed
			return status, &JobFailedError{JobID: jobID, Message: status.ErrorMessage}
		default:
			// pending or an unrecognized status: keep polling
			logging.Debug("job %s status %q (attempt %d/%d)", jobID, status.Status, attempt, m.maxAttempts)
		}

		if attempt == m.maxAttempts {
			break
		}

		select {
		case <-time.After(m.pollInterval):
		case <-ctx.Done():
			m.state = StateIdle
			return nil, ctx.Err()
		}
	}

	m.state = StateTimedOut
	return nil, fmt.Errorf("job %s did not finish after %d attempts: %w", jobID, m.maxAttempts, ErrTimeout)
}

// Run executes the whole flow: submit, poll to completion, download into
// destDir. It returns the path of the downloaded file. Any stage error is
// terminal; the caller restarts the workflow explicitly.
func (m *Monitor) Run(ctx context.Context, req *Request, destDir string) (string, error) {
	jobID, err := m.Submit(ctx, req)
	if err != nil {
		return "", err
	}

	if _, err := m.Poll(ctx, jobID); err != nil {
		return "", err
	}

	return m.DownloadTo(ctx, jobID, destDir)
}
