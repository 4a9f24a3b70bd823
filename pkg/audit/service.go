package audit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/medtrail/pkg/observability"
)

// Result is one page of entries and the size of the whole filtered set
type Result struct {
	Entries []AuditEntry
	Total   int64
}

// QueryService runs composed filters against the store
type QueryService struct {
	store   Store
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewQueryService creates a QueryService; metrics may be nil
func NewQueryService(store Store, metrics *observability.Metrics) *QueryService {
	return &QueryService{
		store:   store,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// List fetches the page and the total concurrently. The window is clamped
// with NewWindow first, so stores never see a zero limit. Any store failure
// is returned wrapped in ErrRetrieval.
func (s *QueryService) List(ctx context.Context, filter Filter, window Window) (Result, error) {
	window = NewWindow(window.Limit, window.Skip)
	ctx, span := s.tracer.Start(ctx, "audit.List", trace.WithAttributes(
		attribute.Int("audit.limit", window.Limit),
		attribute.Int("audit.skip", window.Skip),
	))
	defer span.End()

	start := time.Now()
	var res Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.store.Find(gctx, filter, window)
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		res.Entries = entries
		return nil
	})
	g.Go(func() error {
		total, err := s.store.Count(gctx, filter)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		res.Total = total
		return nil
	})
	err := g.Wait()

	if s.metrics != nil {
		s.metrics.AuditQueryDuration.Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.AuditQueriesTotal.WithLabelValues(status).Inc()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return Result{}, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	if res.Entries == nil {
		res.Entries = []AuditEntry{}
	}
	span.SetAttributes(attribute.Int64("audit.total", res.Total))
	return res, nil
}

// Count returns the total number of stored entries
func (s *QueryService) Count(ctx context.Context) (int64, error) {
	n, err := s.store.Count(ctx, Filter{})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	return n, nil
}
