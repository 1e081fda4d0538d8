package runs

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/session"
	"github.com/fortuna/vetoscope/internal/store"
)

// Status represents the lifecycle state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether the run can no longer change.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	ErrNotFound  = errors.New("run not found")
	ErrFinished  = errors.New("run already finished")
	ErrQueueFull = errors.New("run queue is full")
	ErrClosed    = errors.New("run manager is shut down")
)

// Progress counts matches visited so far.
type Progress struct {
	Current   int `json:"current"`
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// Run is the API view of one analysis.
type Run struct {
	ID          string            `json:"id"`
	Options     session.Options   `json:"options"`
	Status      Status            `json:"status"`
	State       session.State     `json:"state"`
	TeamName    string            `json:"teamName,omitempty"`
	Progress    Progress          `json:"progress"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"errorKind,omitempty"`
	Result      *aggregate.Result `json:"-"`
	CreatedAt   time.Time         `json:"createdAt"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// Copy returns a copy safe to hand to callers.
func (r *Run) Copy() *Run {
	if r == nil {
		return nil
	}
	cpy := *r
	return &cpy
}

// Finish records the outcome of the analysis.
func (r *Run) Finish(result *aggregate.Result, err error, now time.Time) {
	now = now.UTC()
	r.CompletedAt = &now
	switch {
	case err == nil:
		r.Status = StatusCompleted
		r.State = session.StateCompleted
		r.Result = result
		if result != nil {
			r.TeamName = result.TeamName
		}
	case errors.Is(err, session.ErrCancelled):
		r.Status = StatusCancelled
		r.State = session.StateCancelled
		r.Error = err.Error()
		r.ErrorKind = session.Kind(err)
	default:
		r.Status = StatusFailed
		r.State = session.StateFailed
		r.Error = err.Error()
		r.ErrorKind = session.Kind(err)
	}
}

// Record converts the run to its persisted form.
func (r *Run) Record() store.RunRecord {
	return store.RunRecord{
		ID:          r.ID,
		TeamURL:     r.Options.TeamURL,
		TeamName:    r.TeamName,
		Status:      string(r.Status),
		Error:       r.Error,
		ErrorKind:   r.ErrorKind,
		Options:     r.Options,
		Result:      r.Result,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}

// FromRecord rebuilds a finished run from storage.
func FromRecord(rec store.RunRecord) *Run {
	run := &Run{
		ID:          rec.ID,
		Options:     rec.Options,
		Status:      Status(rec.Status),
		TeamName:    rec.TeamName,
		Error:       rec.Error,
		ErrorKind:   rec.ErrorKind,
		Result:      rec.Result,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
	}
	if rec.Result != nil {
		run.Progress.Processed = rec.Result.TeamStats.Matches
	}
	return run
}

// Analyzer executes a single run. session.Orchestrator satisfies it.
type Analyzer interface {
	Run(ctx context.Context, opts session.Options, reporters ...session.Reporter) (*aggregate.Result, error)
}

// Store persists run records.
type Store interface {
	SaveRun(ctx context.Context, rec store.RunRecord) error
	GetRun(ctx context.Context, id string) (*store.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
}

// Publisher announces completed results.
type Publisher interface {
	PublishResult(ctx context.Context, runID string, result *aggregate.Result) error
}

// Broadcaster pushes progress events to live subscribers.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

// Event types sent to subscribers.
const (
	EventQueued    = "run.queued"
	EventState     = "run.state"
	EventListings  = "run.listings"
	EventMatch     = "run.match"
	EventSkipped   = "run.skipped"
	EventProcessed = "run.processed"
	EventFinished  = "run.finished"
)

// Event is one progress notification.
type Event struct {
	Type      string                 `json:"type"`
	RunID     string                 `json:"runId"`
	Status    Status                 `json:"status,omitempty"`
	State     session.State          `json:"state,omitempty"`
	Index     int                    `json:"index,omitempty"`
	Total     int                    `json:"total,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Reason    session.SkipReason     `json:"reason,omitempty"`
	Record    *aggregate.MatchRecord `json:"record,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
