package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/lowpoly/internal/imageprocessor"
	"github.com/example/lowpoly/internal/logging"
	"github.com/example/lowpoly/internal/repository"
)

// ResultContentType is the media type of every rendered image.
const ResultContentType = "image/jpeg"

// ProcessingRepository defines the persistence operations needed by the use case.
type ProcessingRepository interface {
	SaveLog(ctx context.Context, log *repository.ProcessingLog) error
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// NopRepository drops every log and reports empty metrics.
type NopRepository struct{}

// SaveLog discards the log.
func (NopRepository) SaveLog(context.Context, *repository.ProcessingLog) error { return nil }

// AggregateMetrics returns a zero aggregation.
func (NopRepository) AggregateMetrics(context.Context) (*repository.MetricsAggregation, error) {
	return &repository.MetricsAggregation{}, nil
}

// Upload is one image submitted for low-poly rendering.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Params      imageprocessor.Params
}

// Result is the rendered output of an Upload.
type Result struct {
	RequestID   string
	ContentType string
	Image       []byte
	Params      imageprocessor.Params
	CacheHit    bool
}

// LowPolyUseCase encapsulates the rendering flow: cache lookup, rendering and
// bookkeeping.
type LowPolyUseCase struct {
	repo           ProcessingRepository
	cache          Cache
	renderer       imageprocessor.Renderer
	logger         *zap.Logger
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewLowPolyUseCase constructs a new use case instance.
func NewLowPolyUseCase(repo ProcessingRepository, cache Cache, renderer imageprocessor.Renderer, logger *zap.Logger, cacheTTL time.Duration) *LowPolyUseCase {
	return &LowPolyUseCase{
		repo:           repo,
		cache:          cache,
		renderer:       renderer,
		logger:         logger.Named("lowpoly_usecase"),
		cacheTTL:       cacheTTL,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Process renders upload, serving identical earlier requests from the cache.
func (uc *LowPolyUseCase) Process(ctx context.Context, upload Upload) (*Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.process", requestID)
	start := time.Now()

	params := upload.Params.Normalize()
	hash := sha1.Sum(upload.Data)
	hashHex := hex.EncodeToString(hash[:])
	entry := &repository.ProcessingLog{
		RequestID:   requestID,
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
		SHA1Hash:    hashHex,
		NumPoints:   params.NumPoints,
		DetailLevel: params.DetailLevel,
		CreatedAt:   start.UTC(),
	}

	if !imageprocessor.Allowed(upload.ContentType) {
		return nil, uc.fail(ctx, entry, start, "usecase.validate", imageprocessor.ErrUnsupportedFormat)
	}

	cacheKey := fmt.Sprintf("lowpoly:%s:%d:%d", hashHex, params.NumPoints, params.DetailLevel)
	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey)
	switch {
	case err == nil && len(cached) > 0:
		opLogger.Info("serving cached rendering", zap.String("sha1", hashHex))
		entry.CacheHit = true
		uc.succeed(ctx, entry, start)
		return &Result{
			RequestID:   requestID,
			ContentType: ResultContentType,
			Image:       cached,
			Params:      params,
			CacheHit:    true,
		}, nil
	case err != nil && !errors.Is(err, redis.Nil):
		opLogger.Warn("cache lookup failed, rendering anyway", zap.Error(err))
	}

	img, err := imageprocessor.Decode(upload.ContentType, upload.Data)
	if err != nil {
		return nil, uc.fail(ctx, entry, start, "usecase.decode_image", err)
	}

	rendered, err := uc.renderer.Render(ctx, img, params)
	if err != nil {
		return nil, uc.fail(ctx, entry, start, "usecase.render", err)
	}

	encoded, err := imageprocessor.EncodeJPEG(rendered)
	if err != nil {
		return nil, uc.fail(ctx, entry, start, "usecase.encode_image", err)
	}

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, encoded, uc.cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache rendering", zap.Error(err))
	}

	uc.succeed(ctx, entry, start)
	opLogger.Info("rendered low poly image",
		zap.Int("num_points", params.NumPoints),
		zap.Int("detail_level", params.DetailLevel),
		zap.Int("bytes", len(encoded)),
	)
	return &Result{
		RequestID:   requestID,
		ContentType: ResultContentType,
		Image:       encoded,
		Params:      params,
	}, nil
}

func (uc *LowPolyUseCase) succeed(ctx context.Context, entry *repository.ProcessingLog, start time.Time) {
	entry.Success = true
	entry.Details = fmt.Sprintf("points:%d detail:%d cache_hit:%t", entry.NumPoints, entry.DetailLevel, entry.CacheHit)
	uc.saveLog(ctx, entry, start)
}

func (uc *LowPolyUseCase) fail(ctx context.Context, entry *repository.ProcessingLog, start time.Time, operation string, cause error) error {
	wrapped := logging.NewOperationError(operation, entry.RequestID, cause)
	logging.WithOperation(uc.logger, operation, entry.RequestID).Error("processing failed", zap.Error(cause))
	entry.Details = cause.Error()
	uc.saveLog(ctx, entry, start)
	return wrapped
}

func (uc *LowPolyUseCase) saveLog(ctx context.Context, entry *repository.ProcessingLog, start time.Time) {
	entry.LatencyMs = time.Since(start).Milliseconds()
	if err := uc.repo.SaveLog(ctx, entry); err != nil {
		logging.WithOperation(uc.logger, "usecase.save_log", entry.RequestID).Error("failed to persist processing log", zap.Error(err))
	}
}

func (uc *LowPolyUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}

		if !repository.IsTransient(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *LowPolyUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) ([]byte, error) {
	var result []byte
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
