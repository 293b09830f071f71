// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/telebridge/pkg/identity"
	"github.com/aiku/telebridge/pkg/media"
	"github.com/aiku/telebridge/pkg/metrics"
	"github.com/aiku/telebridge/pkg/platform"
)

// Endpoint is one side of the bridge: the outbound adapter plus exactly
// one ingress mechanism (push or poll).
type Endpoint struct {
	Adapter *platform.Adapter
	Push    platform.PushSource
	Poll    platform.PollSource
}

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	QueueSize     int
	MediaWorkers  int
	ShutdownGrace time.Duration
	DeleteWindow  time.Duration
}

// Engine owns both relay directions and the ingress loops feeding them.
type Engine struct {
	mapper     *identity.Mapper
	normalizer *Normalizer
	a, b       Endpoint
	aToB, bToA *Orchestrator
	pollRetry  time.Duration
	log        zerolog.Logger
}

// NewEngine wires the two endpoints into a bidirectional bridge.
func NewEngine(mapper *identity.Mapper, a, b Endpoint, opts Options, log zerolog.Logger) *Engine {
	pipeline := media.NewPipeline(opts.MediaWorkers, log)
	ocfg := OrchestratorConfig{
		QueueSize:     opts.QueueSize,
		ShutdownGrace: opts.ShutdownGrace,
		DeleteWindow:  opts.DeleteWindow,
	}
	return &Engine{
		mapper:     mapper,
		normalizer: NewNormalizer(mapper, log),
		a:          a,
		b:          b,
		aToB:       NewOrchestrator(a.Adapter, b.Adapter, mapper, pipeline, ocfg, log),
		bToA:       NewOrchestrator(b.Adapter, a.Adapter, mapper, pipeline, ocfg, log),
		pollRetry:  3 * time.Second,
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// Run starts both directions and blocks until ctx is cancelled and the
// queues have drained (or the shutdown grace expired).
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = e.aToB.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = e.bToA.Run(ctx)
	}()

	e.startIngress(ctx, &wg, e.a, e.aToB)
	e.startIngress(ctx, &wg, e.b, e.bToA)

	wg.Wait()
	return nil
}

func (e *Engine) startIngress(ctx context.Context, wg *sync.WaitGroup, ep Endpoint, orch *Orchestrator) {
	switch {
	case ep.Push != nil:
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ep.Push.Subscribe(ctx, func(evt platform.Event) {
				_ = e.ingest(ctx, evt, orch)
			})
			if err != nil && ctx.Err() == nil {
				e.log.Error().Err(err).Str("platform", ep.Adapter.Name()).Msg("Push ingress stopped")
			}
		}()
	case ep.Poll != nil:
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.pollLoop(ctx, ep, orch)
		}()
	}
}

// pollLoop drives a cursor-based ingress. The cursor is persisted only
// after every event in the batch was handed to the orchestrator, so a
// crash between fetch and handoff replays the batch; the normalizer's
// idempotency makes the replay harmless.
func (e *Engine) pollLoop(ctx context.Context, ep Endpoint, orch *Orchestrator) {
	name := ep.Adapter.Name()
	cursor, err := e.mapper.Cursor(name)
	if err != nil {
		e.log.Error().Err(err).Str("platform", name).Msg("Failed to load poll cursor, starting fresh")
	}

	for ctx.Err() == nil {
		events, next, err := ep.Poll.FetchEvents(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.log.Warn().Err(err).Str("platform", name).Msg("Poll failed, backing off")
			select {
			case <-time.After(e.pollRetry):
			case <-ctx.Done():
				return
			}
			continue
		}
		handedOff := true
		for _, evt := range events {
			if err := e.ingest(ctx, evt, orch); err != nil {
				handedOff = false
				break
			}
		}
		if !handedOff {
			// Shutdown interrupted the handoff. Leaving the cursor
			// where it is replays the batch on restart; the
			// normalizer absorbs the duplicates.
			return
		}
		if next != cursor {
			cursor = next
			if err := e.mapper.SetCursor(name, cursor); err != nil {
				e.log.Error().Err(err).Str("platform", name).Msg("Failed to persist poll cursor")
			}
		}
	}
}

// ingest normalizes one native event and hands it to the direction's
// queue. Malformed events are logged and dropped without error; the
// pipeline never stalls on one bad event. A non-nil return means the
// event was not handed off (shutdown interrupted the enqueue) and the
// caller must not acknowledge it.
func (e *Engine) ingest(ctx context.Context, evt platform.Event, orch *Orchestrator) error {
	metrics.EventsIngested.WithLabelValues(evt.Platform, evt.Kind.String()).Inc()

	normalized, err := e.normalizer.Normalize(evt)
	if err != nil {
		metrics.Dropped.WithLabelValues("unparseable").Inc()
		e.log.Warn().Err(err).
			Str("platform", evt.Platform).
			Str("kind", evt.Kind.String()).
			Msg("Dropping malformed event")
		return nil
	}
	if normalized == nil {
		return nil
	}
	if err := orch.Enqueue(ctx, normalized); err != nil {
		e.log.Warn().Err(err).Str("platform", evt.Platform).Msg("Enqueue aborted by shutdown")
		return err
	}
	return nil
}
