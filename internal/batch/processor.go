package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"inkflow/internal/devicesync"
	"inkflow/internal/domain"
	"inkflow/internal/providers/image"
	"inkflow/internal/storage"
)

const (
	tickInterval = 5 * time.Second

	// Minimum spacing between successive generation calls, system-wide.
	// The provider enforces a request-rate ceiling; a single global
	// timestamp serializes all calls, trading throughput for guaranteed
	// compliance.
	generationSpacing = 30 * time.Second

	// Minimum spacing between successive device-sync notifications. The
	// downstream e-ink target overwrites rapid successive updates.
	syncStagger = 10 * time.Minute

	// How long an item claim stays valid. A processing item whose lease
	// expired is re-claimable, so a crash mid-item delays that item by
	// at most one lease.
	itemLease = 10 * time.Minute

	// MaxPrompts bounds how many items one batch may carry.
	MaxPrompts = 50
)

type syncNotice struct {
	itemID   string
	ownerID  string
	imageURL string
	caption  string
}

// Processor drains batch items one at a time under the global generation
// rate limit, and staggers downstream-sync notifications through an
// in-memory FIFO queue. All mutable state lives on this struct; it is
// constructed once at process start.
type Processor struct {
	batches   domain.BatchRepository
	generator image.Generator
	artifacts storage.ArtifactStore
	notifier  devicesync.Notifier
	clock     clockwork.Clock
	logger    zerolog.Logger
	cron      gocron.Scheduler

	// runGuard keeps ticks from overlapping when a pass outlives the
	// tick interval.
	runGuard       sync.Mutex
	lastGeneration time.Time

	mu        sync.Mutex
	syncQueue []syncNotice
	lastSync  time.Time
}

// New wires a batch processor. Pass clockwork.NewRealClock() outside of
// tests.
func New(
	batches domain.BatchRepository,
	generator image.Generator,
	artifacts storage.ArtifactStore,
	notifier devicesync.Notifier,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		batches:   batches,
		generator: generator,
		artifacts: artifacts,
		notifier:  notifier,
		clock:     clock,
		logger:    logger,
	}
}

// Start begins the 5-second tick, with an immediate first pass so
// interrupted work resumes right after a restart.
func (p *Processor) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler(gocron.WithClock(p.clock))
	if err != nil {
		return fmt.Errorf("batch: create gocron scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(tickInterval),
		gocron.NewTask(func() { p.Tick(ctx) }),
		gocron.WithName("batch-tick"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("batch: register tick job: %w", err)
	}
	cron.Start()
	p.cron = cron
	p.logger.Info().Msg("batch: processor started")
	return nil
}

// Stop shuts the ticker down; an in-flight item finishes first.
func (p *Processor) Stop() {
	if p.cron == nil {
		return
	}
	if err := p.cron.Shutdown(); err != nil {
		p.logger.Error().Err(err).Msg("batch: shutdown failed")
	}
	p.logger.Info().Msg("batch: processor stopped")
}

// Tick runs one processing pass: at most one staggered sync delivery,
// then at most one batch item. Overlapping ticks are dropped, never
// queued.
func (p *Processor) Tick(ctx context.Context) {
	if !p.runGuard.TryLock() {
		return
	}
	defer p.runGuard.Unlock()

	p.drainSyncQueue(ctx)
	p.processNextItem(ctx)
}

// drainSyncQueue sends at most one queued notification per stagger
// interval.
func (p *Processor) drainSyncQueue(ctx context.Context) {
	p.mu.Lock()
	if len(p.syncQueue) == 0 {
		p.mu.Unlock()
		return
	}
	now := p.clock.Now()
	if !p.lastSync.IsZero() && now.Sub(p.lastSync) < syncStagger {
		p.mu.Unlock()
		return
	}
	notice := p.syncQueue[0]
	p.syncQueue = p.syncQueue[1:]
	p.lastSync = now
	p.mu.Unlock()

	p.deliverSync(ctx, notice)
}

func (p *Processor) deliverSync(ctx context.Context, notice syncNotice) {
	if err := p.notifier.Notify(ctx, notice.imageURL, notice.caption, notice.ownerID); err != nil {
		if errors.Is(err, devicesync.ErrNoTarget) {
			p.logger.Debug().Str("item_id", notice.itemID).Msg("batch: no sync target, skipping")
		} else {
			p.logger.Warn().Err(err).Str("item_id", notice.itemID).Msg("batch: device sync failed")
		}
		return
	}
	if err := p.batches.MarkItemSynced(ctx, notice.itemID); err != nil {
		p.logger.Error().Err(err).Str("item_id", notice.itemID).Msg("batch: mark synced failed")
	}
}

// processNextItem picks the oldest active batch and processes exactly one
// eligible item from it, respecting the global generation spacing.
func (p *Processor) processNextItem(ctx context.Context) {
	now := p.clock.Now()
	if !p.lastGeneration.IsZero() && now.Sub(p.lastGeneration) < generationSpacing {
		return
	}

	batch, err := p.batches.OldestActive(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.Error().Err(err).Msg("batch: find active batch failed")
		}
		return
	}
	if batch.Status == domain.BatchStatusPending {
		if err := p.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusProcessing); err != nil {
			p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("batch: mark processing failed")
			return
		}
		batch.Status = domain.BatchStatusProcessing
	}

	item, err := p.batches.ClaimNextItem(ctx, batch.ID, now.UTC(), now.UTC().Add(itemLease))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			p.finalize(ctx, batch.ID)
			return
		}
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("batch: claim item failed")
		return
	}

	p.lastGeneration = now
	p.processItem(ctx, batch, item)
}

func (p *Processor) processItem(ctx context.Context, batch *domain.BatchJob, item *domain.BatchJobItem) {
	if item.AttemptCount > 1 {
		p.logger.Warn().Str("item_id", item.ID).Int("attempt", item.AttemptCount).
			Msg("batch: re-picking item with expired lease")
	}

	prompt := domain.ApplyStylePreset(item.Prompt, batch.StylePreset)
	res, err := p.generator.Generate(ctx, image.GenerateRequest{
		Prompt:    prompt,
		Size:      batch.Size,
		RequestID: item.ID,
	})
	if err != nil {
		p.failItem(ctx, item.ID, fmt.Errorf("generate image: %w", err))
		return
	}

	artifactID := uuid.NewString()
	if _, err := p.artifacts.Persist(ctx, res.URL, batch.UserID, artifactID); err != nil {
		p.failItem(ctx, item.ID, fmt.Errorf("persist artifact: %w", err))
		return
	}
	if err := p.batches.CompleteItem(ctx, item.ID, artifactID); err != nil {
		p.logger.Error().Err(err).Str("item_id", item.ID).Msg("batch: complete item failed")
		return
	}
	p.logger.Info().Str("item_id", item.ID).Str("batch_id", batch.ID).Msg("batch: item completed")

	if batch.AutoSync {
		p.scheduleSync(ctx, syncNotice{
			itemID:   item.ID,
			ownerID:  batch.UserID,
			imageURL: p.artifacts.PermanentURL(batch.UserID, artifactID),
			caption:  devicesync.Caption(item.Prompt),
		})
	}
}

// scheduleSync sends the very first notification of a run immediately so
// the device shows something right away; everything after that waits in
// the staggered queue.
func (p *Processor) scheduleSync(ctx context.Context, notice syncNotice) {
	p.mu.Lock()
	first := p.lastSync.IsZero() && len(p.syncQueue) == 0
	if first {
		p.lastSync = p.clock.Now()
	} else {
		p.syncQueue = append(p.syncQueue, notice)
	}
	p.mu.Unlock()

	if first {
		p.deliverSync(ctx, notice)
	}
}

func (p *Processor) failItem(ctx context.Context, itemID string, cause error) {
	p.logger.Warn().Err(cause).Str("item_id", itemID).Msg("batch: item failed")
	if err := p.batches.FailItem(ctx, itemID, cause.Error()); err != nil {
		p.logger.Error().Err(err).Str("item_id", itemID).Msg("batch: record failure failed")
	}
}

// finalize re-reads fresh counts and moves the batch to its terminal
// status: completed when anything succeeded, failed only when nothing
// did. Items still holding a live lease keep the batch open.
func (p *Processor) finalize(ctx context.Context, batchID string) {
	fresh, err := p.batches.GetBatch(ctx, batchID)
	if err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("batch: reload for finalize failed")
		return
	}
	if fresh.Status.Terminal() {
		return
	}
	if fresh.CompletedCount+fresh.FailedCount < fresh.TotalCount {
		return
	}
	status := domain.BatchStatusCompleted
	if fresh.CompletedCount == 0 {
		status = domain.BatchStatusFailed
	}
	if err := p.batches.UpdateStatus(ctx, batchID, status); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("batch: finalize failed")
		return
	}
	p.logger.Info().Str("batch_id", batchID).Str("status", string(status)).
		Int("completed", fresh.CompletedCount).Int("failed", fresh.FailedCount).
		Msg("batch: finalized")
}

// CreateBatch validates the prompt list and stores the batch with one
// item per non-blank trimmed prompt. A batch can never be created with
// zero items.
func (p *Processor) CreateBatch(ctx context.Context, batch *domain.BatchJob, prompts []string) (*domain.BatchJob, error) {
	if len(prompts) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if len(prompts) > MaxPrompts {
		return nil, domain.ErrBatchTooLarge
	}
	kept := make([]string, 0, len(prompts))
	for _, prompt := range prompts {
		if trimmed := strings.TrimSpace(prompt); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	if len(kept) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	batch.Status = domain.BatchStatusPending
	batch.TotalCount = len(kept)

	items := make([]domain.BatchJobItem, len(kept))
	for i, prompt := range kept {
		items[i] = domain.BatchJobItem{
			ID:       uuid.NewString(),
			BatchID:  batch.ID,
			Position: i,
			Prompt:   prompt,
			Status:   domain.ItemStatusPending,
		}
	}
	if err := p.batches.CreateBatch(ctx, batch, items); err != nil {
		return nil, err
	}
	return batch, nil
}

// Cancel stops future item pickup for the batch. An item already in
// flight is not interrupted mid-call.
func (p *Processor) Cancel(ctx context.Context, id string) (*domain.BatchJob, error) {
	batch, err := p.batches.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.Status.Terminal() {
		return nil, domain.ErrBatchNotCancellable
	}
	if err := p.batches.UpdateStatus(ctx, id, domain.BatchStatusCancelled); err != nil {
		return nil, err
	}
	batch.Status = domain.BatchStatusCancelled
	return batch, nil
}

// Delete removes a batch; allowed only once it reached a terminal state.
func (p *Processor) Delete(ctx context.Context, id string) error {
	batch, err := p.batches.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	if !batch.Status.Terminal() {
		return domain.ErrBatchNotDeletable
	}
	return p.batches.DeleteBatch(ctx, id)
}

// GetBatch fetches a batch with live progress counters.
func (p *Processor) GetBatch(ctx context.Context, id string) (*domain.BatchJob, error) {
	return p.batches.GetBatch(ctx, id)
}

// ListBatches returns the user's batches.
func (p *Processor) ListBatches(ctx context.Context, userID string) ([]domain.BatchJob, error) {
	return p.batches.ListByUser(ctx, userID)
}

// ListItems returns the batch's items in processing order.
func (p *Processor) ListItems(ctx context.Context, batchID string) ([]domain.BatchJobItem, error) {
	return p.batches.ListItems(ctx, batchID)
}
