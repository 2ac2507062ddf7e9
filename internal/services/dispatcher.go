package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dataflux/dataflux-backend/internal/analyzers"
	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/types"
	"github.com/dataflux/dataflux-backend/internal/utils"
)

// Dispatcher consumes work messages and drives assets through
// queued -> processing -> completed/failed. The guarded status claim keeps
// redelivered messages from analyzing the same asset twice.
type Dispatcher interface {
	// Start runs the worker pool until ctx is cancelled.
	Start(ctx context.Context) error
	Reanalyze(ctx context.Context, assetID uuid.UUID, force bool, priority int) (*types.Asset, error)
}

type dispatcher struct {
	log        *logger.Logger
	assets     repos.AssetRepo
	queue      WorkQueue
	registry   *analyzers.Registry
	aggregator ResultAggregator
	status     StatusTracker
	bucket     BucketService

	workers        int
	analysisWindow time.Duration
	reclaimEvery   time.Duration
}

func NewDispatcher(
	baseLog *logger.Logger,
	assets repos.AssetRepo,
	queue WorkQueue,
	registry *analyzers.Registry,
	aggregator ResultAggregator,
	status StatusTracker,
	bucket BucketService,
) Dispatcher {
	log := baseLog.With("service", "Dispatcher")
	return &dispatcher{
		log:            log,
		assets:         assets,
		queue:          queue,
		registry:       registry,
		aggregator:     aggregator,
		status:         status,
		bucket:         bucket,
		workers:        utils.GetEnvAsInt("DISPATCHER_WORKERS", 4, log),
		analysisWindow: utils.GetEnvAsDuration("ANALYSIS_TIMEOUT", 5*time.Minute, log),
		reclaimEvery:   utils.GetEnvAsDuration("WORK_RECLAIM_INTERVAL", time.Minute, log),
	}
}

func (d *dispatcher) Start(ctx context.Context) error {
	d.log.Info("Dispatcher starting", "workers", d.workers, "analysis_timeout", d.analysisWindow)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		worker := i
		g.Go(func() error {
			log := d.log.With("worker", worker)
			for {
				delivery, err := d.queue.Receive(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					log.Error("Receive failed, backing off", "error", err)
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(time.Second):
					}
					continue
				}
				d.handleDelivery(ctx, log, delivery)
			}
		})
	}

	// Messages claimed by a consumer that died before acking sit in the
	// pending list; sweep them back onto the topic, once at startup and
	// then on an interval.
	g.Go(func() error {
		ticker := time.NewTicker(d.reclaimEvery)
		defer ticker.Stop()
		for {
			if n, err := d.queue.Reclaim(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.log.Warn("Pending reclaim failed", "error", err)
			} else if n > 0 {
				d.log.Info("Requeued stranded work messages", "count", n)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}

func (d *dispatcher) handleDelivery(ctx context.Context, log *logger.Logger, delivery *WorkDelivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while handling work message", "asset_id", delivery.Message.AssetID, "panic", r)
		}
	}()

	d.handleMessage(ctx, log, delivery.Message)

	// Ack regardless of outcome: failures are recorded on the asset, and
	// redelivering a failed message would just lose the claim guard again.
	if err := delivery.Ack(ctx); err != nil {
		log.Warn("Ack failed, message may be redelivered", "asset_id", delivery.Message.AssetID, "error", err)
	}
}

func (d *dispatcher) handleMessage(ctx context.Context, log *logger.Logger, msg WorkMessage) {
	log = log.With("asset_id", msg.AssetID)

	// Claim the asset. Losing the claim on a non-forced message means a
	// concurrent worker (or an earlier delivery) already owns it.
	err := d.status.Transition(ctx, msg.AssetID, types.AssetStatusQueued, types.AssetStatusProcessing, nil)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			if !msg.Force {
				log.Info("Asset not claimable, skipping duplicate delivery")
				return
			}
			if updErr := d.status.ForceSet(ctx, msg.AssetID, types.AssetStatusProcessing, nil); updErr != nil {
				log.Error("Forced claim failed", "error", updErr)
				return
			}
		} else {
			log.Error("Claim transition failed", "error", err)
			return
		}
	}

	asset, err := d.assets.GetByID(ctx, nil, msg.AssetID)
	if err != nil || asset == nil {
		log.Error("Claimed asset could not be loaded", "error", err)
		d.fail(ctx, log, msg.AssetID, "asset record unavailable after claim")
		return
	}

	analyzer := d.registry.ResolveForMime(asset.MimeType)
	log.Info("Analysis started", "analyzer", analyzer.Name(), "mime_type", asset.MimeType)

	result, runErr := d.runAnalysis(ctx, analyzer, asset)
	if runErr != nil {
		aErr := &AnalyzerError{Analyzer: analyzer.Name(), Err: runErr}
		log.Error("Analysis failed", "error", aErr)
		d.fail(ctx, log, asset.ID, aErr.Error())
		return
	}

	if err := d.aggregator.Persist(ctx, asset.ID, result); err != nil {
		log.Error("Result aggregation failed", "error", err)
		d.fail(ctx, log, asset.ID, err.Error())
		return
	}

	if err := d.status.Transition(ctx, asset.ID, types.AssetStatusProcessing, types.AssetStatusCompleted, nil); err != nil {
		log.Error("Completion transition failed", "error", err)
		return
	}
	log.Info("Analysis completed",
		"analyzer", analyzer.Name(),
		"segments", len(result.Segments),
		"features", len(result.Features),
		"probe_errors", len(result.ProbeErrors()),
	)
}

// runAnalysis stages the blob into a temp file and runs the analyzer under
// the configured deadline.
func (d *dispatcher) runAnalysis(ctx context.Context, analyzer analyzers.Analyzer, asset *types.Asset) (*analyzers.Result, error) {
	blob, err := d.bucket.DownloadFile(ctx, asset.StorageKey)
	if err != nil {
		return nil, &StorageError{Op: "download blob", Err: err}
	}
	defer blob.Close()

	tmp, err := os.CreateTemp("", "dataflux-asset-*")
	if err != nil {
		return nil, &StorageError{Op: "stage temp file", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, blob); err != nil {
		tmp.Close()
		return nil, &StorageError{Op: "stage blob", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &StorageError{Op: "stage blob", Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, d.analysisWindow)
	defer cancel()

	type outcome struct {
		result *analyzers.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := analyzer.Analyze(runCtx, tmpPath, asset)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-runCtx.Done():
		return nil, fmt.Errorf("timeout after %s: %w", d.analysisWindow, runCtx.Err())
	case out := <-done:
		return out.result, out.err
	}
}

func (d *dispatcher) fail(ctx context.Context, log *logger.Logger, assetID uuid.UUID, reason string) {
	if reason == "" {
		reason = "analysis failed"
	}
	if err := d.status.Transition(ctx, assetID, types.AssetStatusProcessing, types.AssetStatusFailed, &reason); err != nil {
		log.Error("Failure transition failed", "error", err)
	}
}

// Reanalyze resets a terminal (or queued) asset back to queued and publishes
// a fresh work message. A processing asset is rejected unless force is set.
func (d *dispatcher) Reanalyze(ctx context.Context, assetID uuid.UUID, force bool, priority int) (*types.Asset, error) {
	asset, err := d.assets.GetByID(ctx, nil, assetID)
	if err != nil {
		return nil, fmt.Errorf("load asset: %w", err)
	}
	if asset == nil {
		return nil, ErrNotFound
	}
	if asset.Status == types.AssetStatusProcessing && !force {
		return nil, ErrConflict
	}
	if priority != 0 && (priority < 1 || priority > 10) {
		return nil, &ValidationError{Reason: "priority must be between 1 and 10"}
	}
	if priority == 0 {
		priority = asset.Priority
	}

	if asset.Status == types.AssetStatusProcessing {
		// Forced requeue of an in-flight asset: the guarded transition
		// would refuse processing -> queued.
		if err := d.status.ForceSet(ctx, assetID, types.AssetStatusQueued, nil); err != nil {
			return nil, fmt.Errorf("forced requeue: %w", err)
		}
	} else {
		if err := d.status.Transition(ctx, assetID, asset.Status, types.AssetStatusQueued, nil); err != nil {
			return nil, err
		}
	}
	if priority != asset.Priority {
		if err := d.assets.UpdateFields(ctx, nil, assetID, map[string]any{
			"processing_priority": priority,
		}); err != nil {
			return nil, fmt.Errorf("update priority: %w", err)
		}
	}

	msg := WorkMessage{
		AssetID:    assetID,
		MimeType:   asset.MimeType,
		Priority:   priority,
		Force:      force,
		EnqueuedAt: time.Now(),
		Service:    "ingestion",
	}
	if err := d.queue.Publish(ctx, msg); err != nil {
		return nil, &QueueError{Err: err}
	}

	d.log.Info("Re-analysis requested", "asset_id", assetID, "force", force, "priority", priority)
	asset.Status = types.AssetStatusQueued
	asset.Priority = priority
	asset.LastError = nil
	return asset, nil
}
