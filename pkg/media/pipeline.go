// Copyright 2024-2026 Aiku AI

// Package media moves attachments between platforms: it downloads from
// the origin, enforces the destination's size ceiling, and hands the
// bytes back in the attachment's original order while the actual
// transfers run concurrently.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aiku/telebridge/pkg/platform"
)

// State describes the outcome of a single attachment transfer.
type State string

const (
	StatePending         State = "pending"
	StateTransferred     State = "transferred"
	StateSkippedTooLarge State = "skipped_too_large"
	StateFailed          State = "failed"
)

// Downloader is the slice of a platform client the pipeline needs.
// *platform.Adapter satisfies it.
type Downloader interface {
	Name() string
	Download(ctx context.Context, att platform.Attachment) ([]byte, error)
}

// Result pairs an attachment with its transfer outcome. Upload is set
// only when State is StateTransferred.
type Result struct {
	Attachment platform.Attachment
	State      State
	Upload     *platform.Upload
	Err        error
}

// Transfer is the handle for an in-flight batch of attachment
// transfers. Results preserve the order the attachments were given in.
type Transfer struct {
	results []Result
	done    chan struct{}
}

// Wait blocks until every transfer in the batch settled or the context
// is cancelled. The returned slice is ordered like the input
// attachments; entries that did not transfer carry their state and
// error instead of bytes.
func (t *Transfer) Wait(ctx context.Context) ([]Result, error) {
	select {
	case <-t.done:
		return t.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pipeline runs attachment transfers on a bounded pool shared across
// all batches.
type Pipeline struct {
	sem chan struct{}
	log zerolog.Logger
}

// NewPipeline returns a pipeline allowing at most workers concurrent
// downloads across all in-flight batches.
func NewPipeline(workers int, log zerolog.Logger) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		sem: make(chan struct{}, workers),
		log: log.With().Str("component", "media").Logger(),
	}
}

// Start begins transferring atts from source in the background and
// returns immediately. maxBytes is the destination's upload ceiling; a
// value <= 0 means unlimited. Attachments over the ceiling settle as
// StateSkippedTooLarge without being downloaded when their size is
// declared up front.
func (p *Pipeline) Start(ctx context.Context, source Downloader, atts []platform.Attachment, maxBytes int64) *Transfer {
	t := &Transfer{
		results: make([]Result, len(atts)),
		done:    make(chan struct{}),
	}
	if len(atts) == 0 {
		close(t.done)
		return t
	}

	var wg sync.WaitGroup
	for i, att := range atts {
		t.results[i] = Result{Attachment: att, State: StatePending}
		wg.Add(1)
		go func(i int, att platform.Attachment) {
			defer wg.Done()
			t.results[i] = p.transferOne(ctx, source, att, maxBytes)
		}(i, att)
	}
	go func() {
		wg.Wait()
		close(t.done)
	}()
	return t
}

func (p *Pipeline) transferOne(ctx context.Context, source Downloader, att platform.Attachment, maxBytes int64) Result {
	res := Result{Attachment: att}

	if maxBytes > 0 && att.SizeBytes > maxBytes {
		p.log.Info().
			Str("platform", source.Name()).
			Str("file", att.FileName).
			Int64("size", att.SizeBytes).
			Int64("limit", maxBytes).
			Msg("Skipping oversized attachment")
		res.State = StateSkippedTooLarge
		res.Err = platform.MediaTooLarge(fmt.Errorf("%s is %d bytes, limit %d", att.FileName, att.SizeBytes, maxBytes))
		return res
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		res.State = StateFailed
		res.Err = ctx.Err()
		return res
	}
	defer func() { <-p.sem }()

	data, err := source.Download(ctx, att)
	if err != nil {
		var perr *platform.Error
		if errors.As(err, &perr) && perr.Kind == platform.KindMediaTooLarge {
			res.State = StateSkippedTooLarge
		} else {
			res.State = StateFailed
		}
		res.Err = err
		p.log.Warn().Err(err).
			Str("platform", source.Name()).
			Str("file", att.FileName).
			Str("state", string(res.State)).
			Msg("Attachment transfer failed")
		return res
	}

	// Sizes the origin never declared get checked after download.
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		res.State = StateSkippedTooLarge
		res.Err = platform.MediaTooLarge(fmt.Errorf("%s is %d bytes, limit %d", att.FileName, len(data), maxBytes))
		return res
	}

	res.State = StateTransferred
	res.Upload = &platform.Upload{
		FileName: att.FileName,
		MimeType: att.MimeType,
		Data:     data,
	}
	return res
}
