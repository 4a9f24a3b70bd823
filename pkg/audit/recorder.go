package audit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/medtrail/pkg/async"
	"github.com/platinummonkey/medtrail/pkg/observability"
)

const (
	tracerName = "github.com/platinummonkey/medtrail/pkg/audit"
	recordTask = "audit record"

	// DefaultWriteTimeout bounds each background append
	DefaultWriteTimeout = 5 * time.Second
)

// Recorder builds audit entries and persists them in the background.
// Record never returns an error and never waits for the store.
type Recorder struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	timeout time.Duration
	tasks   *async.Group
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithRecorderMetrics reports persisted and dropped writes
func WithRecorderMetrics(m *observability.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithWriteTimeout bounds each background append
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRecorder creates a Recorder writing to store
func NewRecorder(store Store, logger *observability.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		timeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tasks = async.NewGroup(nil, r.timeout, r.discard)
	return r
}

// Record attributes the action to the actor in ac, enriches details with the
// request context and starts the append. details is copied before Record returns.
func (r *Recorder) Record(ctx context.Context, ac ActorContext, action, entity string, details Details) {
	entry := BuildEntry(ac, action, entity, details)
	r.tasks.Go(ctx, recordTask, func(ctx context.Context) error {
		return r.persist(ctx, entry)
	})
}

// BuildEntry assembles the entry Record would persist; CreatedAt is left to the store.
func BuildEntry(ac ActorContext, action, entity string, details Details) AuditEntry {
	actor := ResolveActor(ac)

	d := cloneDetails(details)
	if !actor.IsZero() {
		d["actor"] = actor.details()
	}
	if ac.Method != "" {
		d["method"] = ac.Method
	}
	if ac.Path != "" {
		d["path"] = ac.Path
	}
	if ac.ClientAddress != "" {
		d["ip"] = ac.ClientAddress
	}

	return AuditEntry{
		Action:       action,
		Entity:       entity,
		ActorDisplay: actor.Display(),
		Details:      d,
	}
}

func (r *Recorder) persist(ctx context.Context, entry AuditEntry) error {
	ctx, span := r.tracer.Start(ctx, "audit.Record", trace.WithAttributes(
		attribute.String("audit.action", entry.Action),
		attribute.String("audit.entity", entry.Entity),
	))
	defer span.End()

	if err := entry.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	start := time.Now()
	_, err := r.store.Append(ctx, entry)
	if r.metrics != nil {
		r.metrics.AuditRecordDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return err
	}

	if r.metrics != nil {
		r.metrics.AuditRecordsTotal.WithLabelValues(observability.OutcomePersisted).Inc()
	}
	return nil
}

// discard is the only place a write-path error ends up
func (r *Recorder) discard(task string, err error) {
	if r.metrics != nil {
		r.metrics.AuditRecordsTotal.WithLabelValues(observability.OutcomeDropped).Inc()
	}
	if r.logger != nil {
		r.logger.WithError(err).WithField("task", task).Warn("audit entry dropped")
	}
}

// Close stops accepting records and waits for in-flight writes until ctx ends
func (r *Recorder) Close(ctx context.Context) error {
	return r.tasks.Wait(ctx)
}
