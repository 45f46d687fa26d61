package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulseengine/pulse/internal/cache"
	"github.com/pulseengine/pulse/internal/health"
	"github.com/pulseengine/pulse/internal/relations"
	"github.com/pulseengine/pulse/pkg/errors"
	"github.com/pulseengine/pulse/pkg/logging"
	"github.com/pulseengine/pulse/pkg/metrics"
	"github.com/pulseengine/pulse/pkg/resilience"
	"github.com/pulseengine/pulse/pkg/source"
	"github.com/pulseengine/pulse/pkg/types"
)

// SnapshotStore persists cache entries across restarts. It is optional and
// for crash recovery only; the engine never reads it mid-flight.
type SnapshotStore interface {
	Save(ctx context.Context, entries []cache.Entry, lastCycle time.Time) error
	Load(ctx context.Context) ([]cache.Entry, time.Time, error)
}

// Config contains orchestration configuration
type Config struct {
	CycleInterval time.Duration `json:"cycle_interval"`
	// CycleDeadline bounds a whole cycle; when exceeded, scoring proceeds
	// on whatever is cached instead of blocking.
	CycleDeadline time.Duration `json:"cycle_deadline"`
	// CallTimeout is the hard per-adapter-call timeout, independent of the
	// retry policy's internal delays.
	CallTimeout time.Duration `json:"call_timeout"`
	// MaxInFlight bounds concurrent adapter calls.
	MaxInFlight int `json:"max_in_flight"`
	// EngagementWindow is the rolling window communicated to providers as
	// Query.Since, so fetched engagement counts match the window the need
	// rules cite.
	EngagementWindow time.Duration `json:"engagement_window"`
}

// DefaultConfig returns default orchestration configuration
func DefaultConfig() *Config {
	return &Config{
		CycleInterval:    5 * time.Minute,
		CycleDeadline:    2 * time.Minute,
		CallTimeout:      10 * time.Second,
		MaxInFlight:      8,
		EngagementWindow: 90 * 24 * time.Hour,
	}
}

// Engine drives fixed-interval scoring cycles: adapters through the retry
// executor into the cache, then snapshot, score, and publish.
type Engine struct {
	adapters  []source.Adapter // source priority order
	store     *cache.Store
	monitor   *cache.Monitor
	scorer    *relations.Scorer
	detector  *health.Detector
	executor  *resilience.Executor
	metrics   *metrics.Metrics
	snapshots SnapshotStore // optional
	config    *Config
	hub       *Hub
	logger    *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewEngine creates a new engine. Adapter order defines source priority for
// field merging: earlier adapters win contested scalar fields.
func NewEngine(
	adapters []source.Adapter,
	store *cache.Store,
	monitor *cache.Monitor,
	scorer *relations.Scorer,
	detector *health.Detector,
	executor *resilience.Executor,
	m *metrics.Metrics,
	snapshots SnapshotStore,
	config *Config,
) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	return &Engine{
		adapters:  adapters,
		store:     store,
		monitor:   monitor,
		scorer:    scorer,
		detector:  detector,
		executor:  executor,
		metrics:   m,
		snapshots: snapshots,
		config:    config,
		hub:       NewHub(),
		logger:    logging.GetLogger(),
	}
}

// Start restores any persisted cache snapshot and begins the cycle loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.NewInternalError("engine is already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	if e.snapshots != nil {
		entries, lastCycle, err := e.snapshots.Load(ctx)
		if err != nil {
			e.logger.Warn("Could not restore cache snapshot, starting cold",
				"error", err.Error(),
			)
		} else if len(entries) > 0 {
			e.store.Restore(entries)
			e.logger.Info("Restored cache snapshot",
				"entries", len(entries),
				"last_cycle_at", lastCycle,
			)
		}
	}

	e.wg.Add(1)
	go e.loop(ctx)

	e.logger.Info("Engine started",
		"adapters", len(e.adapters),
		"cycle_interval", e.config.CycleInterval,
	)
	return nil
}

// Stop stops the cycle loop and waits for the in-flight cycle to finish.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("Engine stopped")
		return nil
	case <-ctx.Done():
		return errors.NewTimeoutError("engine shutdown").WithCause(ctx.Err())
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	// First cycle runs immediately so queries have data without waiting a
	// full interval.
	e.RunCycle(ctx)

	ticker := time.NewTicker(e.config.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full cycle: concurrent bounded fetches, settle,
// snapshot, score, publish. Partial source failure degrades the result
// instead of failing it; only a scorer configuration fault is fatal.
func (e *Engine) RunCycle(ctx context.Context) Result {
	cycleID := uuid.New().String()
	ctx = logging.WithCycleID(ctx, cycleID)
	start := time.Now()

	cycleCtx, cancel := context.WithTimeout(ctx, e.config.CycleDeadline)
	defer cancel()

	failures := e.fetchAll(cycleCtx)

	// Scoring runs on an immutable snapshot: writes from the next cycle
	// cannot affect this one.
	snap := e.store.Snapshot()
	now := snap.TakenAt

	entities, coverage, freshness := e.assemble(snap)
	edges := e.scorer.Score(entities)
	scores := e.detector.ScoreAll(entities, now)
	needs := e.detector.DetectNeeds(entities, scores, now)

	alerts := e.monitor.Evaluate(snap, coverage, now)
	alerts = append(alerts, fetchFailureAlerts(failures, now)...)

	result := Result{
		CycleID:     cycleID,
		CompletedAt: time.Now(),
		Scores:      scores,
		Edges:       edges,
		Needs:       needs,
		Alerts:      alerts,
		Freshness:   freshness,
	}
	e.hub.Publish(result)

	e.publishMetrics(result, failures, time.Since(start))
	e.persistSnapshot(snap)

	e.logger.LogCycleEvent(ctx, "cycle_completed", cycleID, map[string]interface{}{
		"duration_ms":    time.Since(start).Milliseconds(),
		"entities":       len(entities),
		"edges":          len(edges),
		"needs":          len(needs),
		"alerts":         len(alerts),
		"failed_sources": len(failures),
	})

	return result
}

// fetchAll issues all adapter calls concurrently through a bounded worker
// pool, each wrapped by the retry executor. It returns the final,
// classified failure per source that produced nothing this cycle.
func (e *Engine) fetchAll(ctx context.Context) map[string]*resilience.ClassifiedError {
	sem := make(chan struct{}, e.config.MaxInFlight)
	failures := make(map[string]*resilience.ClassifiedError)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, adapter := range e.adapters {
		wg.Add(1)
		go func(adapter source.Adapter) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				// The cycle deadline expired before this source ever got a
				// worker slot. Record the skip so it degrades as visibly as
				// any other failure.
				mu.Lock()
				failures[adapter.SourceID()] = &resilience.ClassifiedError{
					Operation: "fetch_" + adapter.SourceID(),
					Err:       errors.NewTimeoutError("fetch_" + adapter.SourceID()).WithCause(ctx.Err()),
				}
				mu.Unlock()
				return
			}

			if err := e.fetchSource(ctx, adapter); err != nil {
				mu.Lock()
				failures[adapter.SourceID()] = err
				mu.Unlock()
			}
		}(adapter)
	}

	wg.Wait()
	return failures
}

// fetchSource fetches one adapter and writes its records into the cache.
func (e *Engine) fetchSource(ctx context.Context, adapter source.Adapter) *resilience.ClassifiedError {
	sourceID := adapter.SourceID()
	ctx = logging.WithSourceID(ctx, sourceID)
	operation := "fetch_" + sourceID

	start := time.Now()
	var records []source.Record
	err := e.executor.Execute(ctx, operation, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
		defer cancel()

		var err error
		records, err = adapter.Fetch(callCtx, e.fetchQuery(nil))
		return err
	})
	elapsed := time.Since(start)

	e.monitor.ObserveLatency(sourceID, elapsed)

	if err != nil {
		classified, ok := err.(*resilience.ClassifiedError)
		if !ok {
			classified = &resilience.ClassifiedError{Operation: operation, Attempts: 1, Err: err}
		}

		classification := "permanent"
		if classified.Transient() {
			classification = "transient"
		}
		e.metrics.RecordFetch(sourceID, "failure", elapsed)
		e.metrics.RecordFetchFailure(sourceID, classification)

		e.logger.LogError(ctx, classified, "Source fetch failed", map[string]interface{}{
			"source_id":      sourceID,
			"attempts":       classified.Attempts,
			"classification": classification,
		})
		return classified
	}

	for _, record := range records {
		if record.EntityID == "" {
			e.logger.Warn("Dropping record without entity id", "source_id", sourceID)
			continue
		}
		e.store.Put(sourceID, adapter.SourceType(), record)
	}

	e.metrics.RecordFetch(sourceID, "success", elapsed)
	e.logger.LogSourceEvent(ctx, "fetch_completed", sourceID, map[string]interface{}{
		"records":     len(records),
		"duration_ms": elapsed.Milliseconds(),
	})
	return nil
}

// fetchQuery builds the provider query for a fetch, carrying the rolling
// engagement window as Since so providers report counts over the same span
// the need rules cite.
func (e *Engine) fetchQuery(entityIDs []string) source.Query {
	query := source.Query{EntityIDs: entityIDs}
	if e.config.EngagementWindow > 0 {
		query.Since = time.Now().Add(-e.config.EngagementWindow)
	}
	return query
}

// RefreshEntity refetches one entity's stale or missing source entries on
// demand. Each (source, entity) key goes through the coalescing path, so
// concurrent refreshes of the same entity attach to a single upstream call
// per source instead of stampeding the provider.
func (e *Engine) RefreshEntity(ctx context.Context, entityID string) {
	now := time.Now()
	for _, adapter := range e.adapters {
		sourceID := adapter.SourceID()
		if entry, ok := e.store.Get(sourceID, entityID); ok && !entry.Stale(now) {
			continue
		}

		adapter := adapter
		_, err := e.store.Refresh(ctx, sourceID, adapter.SourceType(), entityID,
			func(ctx context.Context) (source.Record, error) {
				return e.fetchEntityRecord(ctx, adapter, entityID)
			})
		if err != nil {
			e.logger.Debug("On-demand refresh failed",
				"source_id", sourceID,
				"entity_id", entityID,
				"error", err.Error(),
			)
		}
	}
}

// fetchEntityRecord fetches a single entity's record from one adapter, with
// the same retry and timeout treatment as a cycle fetch.
func (e *Engine) fetchEntityRecord(ctx context.Context, adapter source.Adapter, entityID string) (source.Record, error) {
	var records []source.Record
	err := e.executor.Execute(ctx, "refresh_"+adapter.SourceID(), func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
		defer cancel()

		var err error
		records, err = adapter.Fetch(callCtx, e.fetchQuery([]string{entityID}))
		return err
	})
	if err != nil {
		return source.Record{}, err
	}

	for _, r := range records {
		if r.EntityID == entityID {
			return r, nil
		}
	}
	return source.Record{}, errors.NewNotFoundError("entity " + entityID)
}

// fetchFailureAlerts surfaces final fetch failures as alerts: permanent
// failures escalate, exhausted transient failures warn.
func fetchFailureAlerts(failures map[string]*resilience.ClassifiedError, now time.Time) []types.Alert {
	if len(failures) == 0 {
		return nil
	}

	sourceIDs := make([]string, 0, len(failures))
	for id := range failures {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	alerts := make([]types.Alert, 0, len(failures))
	for _, id := range sourceIDs {
		cerr := failures[id]
		severity := types.SeverityCritical
		kind := "permanent"
		if cerr.Transient() {
			severity = types.SeverityWarning
			kind = "transient"
		}
		alerts = append(alerts, types.Alert{
			ID:       uuid.New().String(),
			Category: types.AlertAPIPerformance,
			Severity: severity,
			SourceID: id,
			Message: fmt.Sprintf("source %s failed with a %s error after %d attempt(s): %v",
				id, kind, cerr.Attempts, cerr.Err),
			Timestamp: now,
		})
	}
	return alerts
}

func (e *Engine) publishMetrics(result Result, failures map[string]*resilience.ClassifiedError, elapsed time.Duration) {
	outcome := "ok"
	if len(failures) > 0 {
		outcome = "degraded"
	}
	e.metrics.RecordCycle(outcome, elapsed, len(result.Scores), len(result.Edges))

	alertCounts := make(map[string]map[string]int)
	for _, a := range result.Alerts {
		bySeverity, ok := alertCounts[string(a.Category)]
		if !ok {
			bySeverity = make(map[string]int)
			alertCounts[string(a.Category)] = bySeverity
		}
		bySeverity[string(a.Severity)]++
	}
	e.metrics.UpdateAlerts(alertCounts)

	needCounts := make(map[string]int)
	for _, n := range result.Needs {
		needCounts[n.Priority.String()]++
	}
	e.metrics.UpdateNeeds(needCounts)
}

// persistSnapshot saves the cycle's snapshot for crash recovery, best
// effort and off the request path.
func (e *Engine) persistSnapshot(snap *cache.Snapshot) {
	if e.snapshots == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.snapshots.Save(saveCtx, snap.Entries(), snap.TakenAt); err != nil {
		e.logger.Warn("Could not persist cache snapshot", "error", err.Error())
	}
}

// GetEntityHealth returns the last published health report for an entity.
func (e *Engine) GetEntityHealth(entityID string) (*HealthReport, error) {
	return e.hub.EntityHealth(entityID)
}

// GetRelatedEntities returns an entity's retained relationship edges.
func (e *Engine) GetRelatedEntities(entityID string, limit int) []types.RelationshipEdge {
	return e.hub.RelatedEntities(entityID, limit)
}

// GetActiveAlerts returns the current cycle's alerts.
func (e *Engine) GetActiveAlerts() []types.Alert {
	return e.hub.ActiveAlerts()
}

// GetNeeds returns the current cycle's needs, filtered.
func (e *Engine) GetNeeds(filter NeedFilter) []types.Need {
	return e.hub.Needs(filter)
}

// GetFreshness returns the last cycle's per-source freshness metadata for
// the given entities.
func (e *Engine) GetFreshness(entityIDs ...string) map[string][]types.Freshness {
	return e.hub.FreshnessFor(entityIDs)
}

// LastCycle reports the most recently published cycle.
func (e *Engine) LastCycle() (string, time.Time, bool) {
	return e.hub.LastCycle()
}
