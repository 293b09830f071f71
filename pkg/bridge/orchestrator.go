// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/telebridge/pkg/format"
	"github.com/aiku/telebridge/pkg/identity"
	"github.com/aiku/telebridge/pkg/media"
	"github.com/aiku/telebridge/pkg/metrics"
	"github.com/aiku/telebridge/pkg/platform"
)

const (
	defaultQueueSize     = 256
	defaultShutdownGrace = 10 * time.Second
	defaultDeleteWindow  = 5 * time.Minute
)

// OrchestratorConfig tunes one direction of the bridge. Zero values fall
// back to the defaults above.
type OrchestratorConfig struct {
	QueueSize     int
	ShutdownGrace time.Duration
	DeleteWindow  time.Duration
}

// inflight pairs a queued event with its media transfer, which starts at
// enqueue time so downloads overlap with whatever is ahead in the queue.
type inflight struct {
	evt      *SyncEvent
	transfer *media.Transfer
}

// Orchestrator relays events from one platform to the other. Dispatch is
// strictly sequential: destination ordering matches the order events were
// enqueued, regardless of how long each media transfer takes.
type Orchestrator struct {
	direction string
	source    *platform.Adapter
	dest      *platform.Adapter
	mapper    *identity.Mapper
	resolver  *Resolver
	pipeline  *media.Pipeline
	queue     chan *inflight
	grace     time.Duration
	window    time.Duration
	log       zerolog.Logger

	// deferred holds deletion intents for source-native IDs whose create
	// has not been relayed yet, so a delete observed first still wins.
	mu       sync.Mutex
	deferred map[string]time.Time

	now func() time.Time
}

func NewOrchestrator(source, dest *platform.Adapter, mapper *identity.Mapper, pipeline *media.Pipeline, cfg OrchestratorConfig, log zerolog.Logger) *Orchestrator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	if cfg.DeleteWindow <= 0 {
		cfg.DeleteWindow = defaultDeleteWindow
	}
	direction := source.Name() + "->" + dest.Name()
	return &Orchestrator{
		direction: direction,
		source:    source,
		dest:      dest,
		mapper:    mapper,
		resolver:  NewResolver(mapper),
		pipeline:  pipeline,
		queue:     make(chan *inflight, cfg.QueueSize),
		grace:     cfg.ShutdownGrace,
		window:    cfg.DeleteWindow,
		deferred:  make(map[string]time.Time),
		log:       log.With().Str("component", "orchestrator").Str("direction", direction).Logger(),
		now:       time.Now,
	}
}

// Enqueue hands a normalized event to this direction. It blocks when the
// queue is full, which propagates backpressure to the ingress (and, for
// polled sources, holds back the cursor).
func (o *Orchestrator) Enqueue(ctx context.Context, evt *SyncEvent) error {
	inf := &inflight{evt: evt}
	if evt.Kind == platform.EventCreate && len(evt.Attachments) > 0 {
		inf.transfer = o.pipeline.Start(ctx, o.source, evt.Attachments, o.dest.MaxUploadBytes())
	}
	select {
	case o.queue <- inf:
		metrics.QueueDepth.WithLabelValues(o.direction).Set(float64(len(o.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches queued events until ctx is cancelled, then drains
// whatever is already queued within the shutdown grace period.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case inf := <-o.queue:
			o.dispatch(ctx, inf)
			metrics.QueueDepth.WithLabelValues(o.direction).Set(float64(len(o.queue)))
		case <-ctx.Done():
			return o.drain()
		}
	}
}

func (o *Orchestrator) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), o.grace)
	defer cancel()
	for {
		select {
		case inf := <-o.queue:
			o.dispatch(ctx, inf)
		default:
			return nil
		}
		if ctx.Err() != nil {
			remaining := len(o.queue)
			if remaining > 0 {
				o.log.Warn().Int("remaining", remaining).Msg("Shutdown grace expired with events still queued")
			}
			return nil
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, inf *inflight) {
	evt := inf.evt
	log := o.log.With().
		Str("kind", evt.Kind.String()).
		Str("native_id", evt.SourceNativeID).
		Str("canonical_id", evt.CanonicalID).
		Logger()

	switch evt.Kind {
	case platform.EventCreate:
		o.handleCreate(ctx, inf, log)
	case platform.EventEdit:
		o.handleEdit(ctx, evt, log)
	case platform.EventDelete:
		o.handleDelete(ctx, evt, log)
	}
}

func (o *Orchestrator) handleCreate(ctx context.Context, inf *inflight, log zerolog.Logger) {
	evt := inf.evt

	if o.takeDeferredDelete(evt.SourceNativeID) {
		// Deleted at the origin before we got around to relaying it.
		if _, err := o.mapper.MarkDeleted(evt.CanonicalID); err != nil {
			log.Error().Err(err).Msg("Failed to mark never-relayed message deleted")
		}
		metrics.Dropped.WithLabelValues("deleted_before_relay").Inc()
		log.Info().Msg("Suppressed relay of a message already deleted at origin")
		return
	}

	degraded := false
	var uploads []platform.Upload
	var placeholders []string
	if inf.transfer != nil {
		results, err := inf.transfer.Wait(ctx)
		if err != nil {
			metrics.Deliveries.WithLabelValues(o.direction, "failed").Inc()
			log.Error().Err(err).Msg("Gave up waiting for media transfer")
			return
		}
		for _, res := range results {
			metrics.MediaTransfers.WithLabelValues(string(res.State)).Inc()
			switch res.State {
			case media.StateTransferred:
				uploads = append(uploads, *res.Upload)
			case media.StateSkippedTooLarge:
				degraded = true
				placeholders = append(placeholders, format.AttachmentPlaceholder(res.Attachment.FileName, res.Attachment.SizeBytes))
			case media.StateFailed:
				degraded = true
				placeholders = append(placeholders, format.AttachmentPlaceholder(res.Attachment.FileName, 0))
			}
		}
	}

	msg := platform.Message{
		Text:          evt.Text,
		AuthorDisplay: evt.AuthorName,
		AvatarURL:     evt.AvatarURL,
		Uploads:       uploads,
	}
	if len(placeholders) > 0 {
		msg.Text = strings.TrimSpace(msg.Text + "\n\n" + strings.Join(placeholders, "\n"))
	}

	if evt.ReplyToNativeID != "" {
		destNative, fallback, err := o.resolver.ResolveReply(evt.SourcePlatform, evt.ReplyToNativeID, o.dest.Name())
		if err != nil {
			log.Warn().Err(err).Msg("Reply resolution failed, degrading to annotation")
		}
		if destNative != "" {
			msg.ReplyToNativeID = destNative
		} else {
			msg.ReplyDegraded = true
			msg.ReplyFallbackAuthor = fallback
			degraded = true
		}
	}

	nativeID, err := o.dest.Send(ctx, msg)
	if err != nil {
		metrics.Deliveries.WithLabelValues(o.direction, "failed").Inc()
		log.Error().Err(err).Msg("Delivery failed")
		return
	}

	status, outcome := identity.StatusDelivered, "delivered"
	if degraded {
		status, outcome = identity.StatusDegraded, "degraded"
	}
	if err := o.mapper.Record(evt.CanonicalID, o.dest.Name(), nativeID, status); err != nil {
		// The message exists on the destination but the store does not
		// know it. Future edits and deletes of it cannot be relayed.
		log.Error().Err(err).
			Str("dest_native_id", nativeID).
			Msg("Delivered but mapping write failed, identity store needs reconciliation")
	}
	metrics.Deliveries.WithLabelValues(o.direction, outcome).Inc()
	log.Info().Str("dest_native_id", nativeID).Str("outcome", outcome).Msg("Relayed message")
}

// handleEdit propagates a text edit best-effort: an edit that cannot be
// applied never blocks the queue behind it.
func (o *Orchestrator) handleEdit(ctx context.Context, evt *SyncEvent, log zerolog.Logger) {
	if evt.CanonicalID == "" {
		metrics.Dropped.WithLabelValues("unmapped_edit").Inc()
		log.Warn().Msg("Edit for a message the bridge never relayed, dropping")
		return
	}
	destNative, ok, err := o.mapper.ResolveNative(evt.CanonicalID, o.dest.Name())
	if err != nil || !ok {
		metrics.Dropped.WithLabelValues("unmapped_edit").Inc()
		log.Warn().AnErr("err", err).Msg("No destination mapping for edit, dropping")
		return
	}

	author := evt.AuthorName
	if author == "" {
		if origin, ok, _ := o.mapper.Get(evt.SourcePlatform, evt.SourceNativeID); ok {
			author = origin.AuthorName
		}
	}
	text := format.AuthorPrefixMarkdown(author, evt.Text)
	if err := o.dest.Edit(ctx, destNative, text); err != nil {
		metrics.Deliveries.WithLabelValues(o.direction, "edit_failed").Inc()
		log.Warn().Err(err).Str("dest_native_id", destNative).Msg("Best-effort edit failed")
		return
	}
	metrics.Deliveries.WithLabelValues(o.direction, "edited").Inc()
	log.Info().Str("dest_native_id", destNative).Msg("Relayed edit")
}

// handleDelete removes the counterpart message exactly once. MarkDeleted
// returns only newly stamped mappings, so a replayed delete finds nothing
// left to do.
func (o *Orchestrator) handleDelete(ctx context.Context, evt *SyncEvent, log zerolog.Logger) {
	if evt.CanonicalID == "" {
		o.deferDelete(evt.SourceNativeID)
		log.Info().Msg("Delete for a message not yet relayed, deferring intent")
		return
	}

	marked, err := o.mapper.MarkDeleted(evt.CanonicalID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to mark mappings deleted")
		return
	}
	if len(marked) == 0 {
		log.Debug().Msg("Delete already processed, skipping")
		return
	}
	for _, mapping := range marked {
		if mapping.Platform != o.dest.Name() {
			continue
		}
		if err := o.dest.Delete(ctx, mapping.NativeID); err != nil {
			log.Warn().Err(err).Str("dest_native_id", mapping.NativeID).Msg("Destination delete failed")
			continue
		}
		metrics.Deliveries.WithLabelValues(o.direction, "deleted").Inc()
		log.Info().Str("dest_native_id", mapping.NativeID).Msg("Relayed delete")
	}
}

func (o *Orchestrator) deferDelete(sourceNativeID string) {
	now := o.now()
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, at := range o.deferred {
		if now.Sub(at) > o.window {
			delete(o.deferred, id)
		}
	}
	o.deferred[sourceNativeID] = now
}

func (o *Orchestrator) takeDeferredDelete(sourceNativeID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	at, ok := o.deferred[sourceNativeID]
	if !ok {
		return false
	}
	delete(o.deferred, sourceNativeID)
	return o.now().Sub(at) <= o.window
}
