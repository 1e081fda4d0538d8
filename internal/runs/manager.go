package runs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/platform/logging"
	"github.com/fortuna/vetoscope/internal/session"
	"github.com/fortuna/vetoscope/internal/store"
)

// Config tunes the manager.
type Config struct {
	// Workers is the number of runs executed at once. vlr.gg is scraped
	// politely, so the default is a single worker.
	Workers      int
	QueueSize    int
	HistoryLimit int
}

func DefaultConfig() Config {
	return Config{Workers: 1, QueueSize: 32, HistoryLimit: 20}
}

// Option attaches an optional collaborator.
type Option func(*Manager)

func WithStore(s Store) Option             { return func(m *Manager) { m.store = s } }
func WithPublisher(p Publisher) Option     { return func(m *Manager) { m.publisher = p } }
func WithBroadcaster(b Broadcaster) Option { return func(m *Manager) { m.broadcaster = b } }

type entry struct {
	run    *Run
	cancel context.CancelFunc
	// saved is closed once the queued record has been written. Later
	// writes wait on it so the store never ends up behind memory.
	saved chan struct{}
}

// Manager queues runs, executes them on background workers and keeps their
// state until shutdown.
type Manager struct {
	analyzer    Analyzer
	store       Store
	publisher   Publisher
	broadcaster Broadcaster
	cfg         Config
	logger      *logging.Logger

	mu     sync.RWMutex
	runs   map[string]*entry
	closed bool
	queue  chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// NewManager constructs a Manager and launches its workers.
func NewManager(analyzer Analyzer, cfg Config, logger *logging.Logger, opts ...Option) (*Manager, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaults.HistoryLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logging.OrDefault(logger).With("component", "runs"),
		runs:     make(map[string]*entry),
		queue:    make(chan string, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m, nil
}

// Start validates opts and queues a new run.
func (m *Manager) Start(ctx context.Context, opts session.Options) (*Run, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	id, err := NewID()
	if err != nil {
		return nil, errors.Wrap(err, "generate run id")
	}
	run := &Run{
		ID:        id,
		Options:   opts,
		Status:    StatusQueued,
		State:     session.StateIdle,
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	select {
	case m.queue <- id:
	default:
		m.mu.Unlock()
		return nil, ErrQueueFull
	}
	e := &entry{run: run, saved: make(chan struct{})}
	m.runs[id] = e
	snapshot := run.Copy()
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	close(e.saved)

	m.emit(Event{Type: EventQueued, RunID: id, Status: StatusQueued})
	m.logger.Info("run queued", "run_id", id, "team_url", opts.TeamURL)
	return snapshot, nil
}

// Get returns the run with the given id, falling back to stored history.
func (m *Manager) Get(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	e, ok := m.runs[id]
	var run *Run
	if ok {
		run = e.run.Copy()
	}
	m.mu.RUnlock()
	if ok {
		return run, nil
	}

	if m.store == nil {
		return nil, ErrNotFound
	}
	rec, err := m.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return FromRecord(*rec), nil
}

// Cancel stops a queued or running run.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	e, ok := m.runs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if e.run.Status.Finished() {
		m.mu.Unlock()
		return ErrFinished
	}

	if e.run.Status == StatusQueued {
		// Never picked up by a worker; finish it here.
		now := m.now().UTC()
		e.run.Status = StatusCancelled
		e.run.State = session.StateCancelled
		e.run.Error = "cancelled before start"
		e.run.ErrorKind = "cancelled"
		e.run.CompletedAt = &now
		snapshot := e.run.Copy()
		m.mu.Unlock()

		<-e.saved
		m.persist(m.ctx, snapshot)
		m.emit(Event{Type: EventFinished, RunID: id, Status: StatusCancelled, Error: snapshot.Error})
		return nil
	}

	cancel := e.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// List returns the runs known to this process, newest first.
func (m *Manager) List() []*Run {
	m.mu.RLock()
	out := make([]*Run, 0, len(m.runs))
	for _, e := range m.runs {
		out = append(out, e.run.Copy())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// History returns the most recent stored runs.
func (m *Manager) History(ctx context.Context, limit int) ([]*Run, error) {
	if m.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = m.cfg.HistoryLimit
	}
	records, err := m.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Run, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out, nil
}

// Shutdown cancels in-flight runs and waits for the workers to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	m.mu.Lock()
	var abandoned []*entry
	for _, e := range m.runs {
		if e.run.Status == StatusQueued {
			now := m.now().UTC()
			e.run.Status = StatusCancelled
			e.run.State = session.StateCancelled
			e.run.Error = "cancelled by shutdown"
			e.run.ErrorKind = "cancelled"
			e.run.CompletedAt = &now
			abandoned = append(abandoned, &entry{run: e.run.Copy(), saved: e.saved})
		}
	}
	m.mu.Unlock()

	for _, e := range abandoned {
		select {
		case <-e.saved:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.persist(ctx, e.run)
	}
	return nil
}

func (m *Manager) worker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case id := <-m.queue:
			if m.ctx.Err() != nil {
				return
			}
			m.execute(id)
		}
	}
}

func (m *Manager) execute(id string) {
	m.mu.Lock()
	e, ok := m.runs[id]
	if !ok || e.run.Status != StatusQueued {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(logging.WithRunID(m.ctx, id))
	defer cancel()
	now := m.now().UTC()
	e.cancel = cancel
	e.run.Status = StatusRunning
	e.run.StartedAt = &now
	opts := e.run.Options
	snapshot := e.run.Copy()
	saved := e.saved
	m.mu.Unlock()

	<-saved
	m.persist(ctx, snapshot)
	m.logger.InfoContext(ctx, "run started")

	result, err := m.analyzer.Run(ctx, opts, &progressReporter{m: m, id: id})
	m.finish(id, result, err)
}

func (m *Manager) finish(id string, result *aggregate.Result, err error) {
	now := m.now().UTC()

	m.mu.Lock()
	e := m.runs[id]
	e.cancel = nil
	e.run.Finish(result, err, now)
	snapshot := e.run.Copy()
	m.mu.Unlock()

	// The run context is gone by now; final bookkeeping uses a fresh one.
	ctx, cancel := context.WithTimeout(logging.WithRunID(context.Background(), id), 10*time.Second)
	defer cancel()

	m.persist(ctx, snapshot)
	if snapshot.Status == StatusCompleted && m.publisher != nil && result != nil {
		if perr := m.publisher.PublishResult(ctx, id, result); perr != nil {
			m.logger.WarnContext(ctx, "publish result failed", "error", perr)
		}
	}
	m.emit(Event{Type: EventFinished, RunID: id, Status: snapshot.Status, Error: snapshot.Error})

	if err != nil {
		m.logger.InfoContext(ctx, "run finished",
			"status", string(snapshot.Status),
			"kind", snapshot.ErrorKind,
			"error", err)
		return
	}
	m.logger.InfoContext(ctx, "run finished",
		"status", string(snapshot.Status),
		"matches", result.TeamStats.Matches)
}

func (m *Manager) persist(ctx context.Context, run *Run) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveRun(ctx, run.Record()); err != nil {
		m.logger.WarnContext(ctx, "persist run failed", "run_id", run.ID, "error", err)
	}
}

func (m *Manager) emit(ev Event) {
	if m.broadcaster == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now().UTC()
	}
	if err := m.broadcaster.BroadcastJSON(ev); err != nil {
		m.logger.Debug("broadcast failed", "type", ev.Type, "error", err)
	}
}

func (m *Manager) update(id string, fn func(*Run)) {
	m.mu.Lock()
	if e, ok := m.runs[id]; ok {
		fn(e.run)
	}
	m.mu.Unlock()
}

// NewID returns a random 16 character hex run identifier.
func NewID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
