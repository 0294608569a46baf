// Package ledger implements the crowdfunding ledger: project registration,
// escrowed donations, one-shot finalization with pull refunds, and the
// expert review registry. Every mutating operation runs as one store
// transaction, so a failure leaves no partial state behind.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dfund/internal/domain"
)

const tracerName = "dfund/internal/ledger"

// SystemCaller identifies finalizations triggered by the sweeper rather than a user.
const SystemCaller = "system:finalizer"

// Clock supplies the trusted time used for every deadline comparison.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Config tunes policy that is not part of the stored state.
type Config struct {
	Clock  Clock
	Logger zerolog.Logger
	// FinalizeGrace is how long after the deadline only the creator may finalize.
	FinalizeGrace time.Duration
	// ReviewPanel restricts who may vote. Empty means any account except the creator.
	ReviewPanel []string
	Tracer      trace.Tracer
}

// Service exposes the ledger operations.
type Service struct {
	store  domain.Store
	clock  Clock
	logger zerolog.Logger
	grace  time.Duration
	panel  map[string]struct{}
	tracer trace.Tracer
}

// New wires a Service over store.
func New(store domain.Store, cfg Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	panel := make(map[string]struct{}, len(cfg.ReviewPanel))
	for _, member := range cfg.ReviewPanel {
		member = strings.TrimSpace(member)
		if member != "" {
			panel[member] = struct{}{}
		}
	}
	grace := cfg.FinalizeGrace
	if grace < 0 {
		grace = 0
	}
	return &Service{
		store:  store,
		clock:  clock,
		logger: cfg.Logger,
		grace:  grace,
		panel:  panel,
		tracer: tracer,
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ledger."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
	}
	span.End()
}

// loadProject reads a project, translating a missing record into a coded error.
func loadProject(ctx context.Context, tx domain.Tx, id uint64, lock bool) (domain.Project, error) {
	if id == 0 {
		return domain.Project{}, domain.NotFound(domain.CodeProjectNotFound, "project id 0 is never assigned")
	}
	var (
		p   domain.Project
		err error
	)
	if lock {
		p, err = tx.LockProject(ctx, id)
	} else {
		p, err = tx.GetProject(ctx, id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Project{}, domain.NotFound(domain.CodeProjectNotFound, "project not found")
		}
		return domain.Project{}, err
	}
	if p.Title == "" {
		return domain.Project{}, domain.NotFound(domain.CodeProjectNotFound, "project not found")
	}
	return p, nil
}

func (s *Service) logRejected(op string, err error) {
	if err == nil {
		return
	}
	kind := domain.KindOf(err)
	if kind == "" {
		s.logger.Error().Err(err).Str("op", op).Msg("ledger operation failed")
		return
	}
	s.logger.Debug().Err(err).Str("op", op).Str("kind", string(kind)).Msg("ledger operation rejected")
}
