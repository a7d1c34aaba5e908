package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/lowpoly/internal/logging"
)

// ProcessingLog records one low-poly rendering request.
type ProcessingLog struct {
	ID          uint      `gorm:"primaryKey"`
	RequestID   string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Filename    string    `gorm:"column:filename;size:255"`
	ContentType string    `gorm:"column:content_type;size:64"`
	SHA1Hash    string    `gorm:"column:sha1_hash;index;size:40"`
	NumPoints   int       `gorm:"column:num_points"`
	DetailLevel int       `gorm:"column:detail_level"`
	Success     bool      `gorm:"column:success"`
	CacheHit    bool      `gorm:"column:cache_hit"`
	Details     string    `gorm:"column:details;type:text"`
	LatencyMs   int64     `gorm:"column:latency_ms"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ProcessingLog) TableName() string {
	return "processing_logs"
}

// MetricsAggregation is the raw aggregate over all processing logs.
type MetricsAggregation struct {
	TotalCount       int64
	SuccessCount     int64
	CacheHitCount    int64
	AverageLatencyMs float64
}

// ProcessingRepository persists processing logs through gorm.
type ProcessingRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewProcessingRepository creates a new repository instance.
func NewProcessingRepository(db *gorm.DB, logger *zap.Logger) *ProcessingRepository {
	return &ProcessingRepository{
		db:             db,
		logger:         logger.Named("processing_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ProcessingRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&ProcessingLog{})
	})
}

// SaveLog persists a processing log entry.
func (r *ProcessingRepository) SaveLog(ctx context.Context, log *ProcessingLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// AggregateMetrics summarises every stored processing log.
func (r *ProcessingRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount       int64
		SuccessCount     int64
		CacheHitCount    int64
		AverageLatencyMs float64
	}
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&ProcessingLog{}).
			Select("COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_count, " +
				"COALESCE(SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END), 0) AS cache_hit_count, " +
				"COALESCE(AVG(latency_ms), 0) AS average_latency_ms").
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &MetricsAggregation{
		TotalCount:       row.TotalCount,
		SuccessCount:     row.SuccessCount,
		CacheHitCount:    row.CacheHitCount,
		AverageLatencyMs: row.AverageLatencyMs,
	}, nil
}

func (r *ProcessingRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !IsTransient(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

// IsTransient reports whether err looks like a timeout or temporary failure
// worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
