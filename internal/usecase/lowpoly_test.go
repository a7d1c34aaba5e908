package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/example/lowpoly/internal/imageprocessor"
	"github.com/example/lowpoly/internal/logging"
	"github.com/example/lowpoly/internal/repository"
)

type stubRepository struct {
	savedLogs   []*repository.ProcessingLog
	saveErr     error
	aggregation *repository.MetricsAggregation
	aggErr      error
}

func (s *stubRepository) SaveLog(ctx context.Context, log *repository.ProcessingLog) error {
	s.savedLogs = append(s.savedLogs, log)
	return s.saveErr
}

func (s *stubRepository) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	if s.aggErr != nil {
		return nil, s.aggErr
	}
	return s.aggregation, nil
}

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	setValues [][]byte
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	s.setValues = append(s.setValues, value)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) ([]byte, error) {
	s.getKeys = append(s.getKeys, key)
	var value []byte
	if len(s.getValues) > 0 {
		value = []byte(s.getValues[0])
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type stubRenderer struct {
	calls  int
	params imageprocessor.Params
	err    error
}

func (s *stubRenderer) Render(ctx context.Context, src image.Image, params imageprocessor.Params) (image.Image, error) {
	s.calls++
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return src, nil
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestUseCase(repo ProcessingRepository, cache Cache, renderer imageprocessor.Renderer) *LowPolyUseCase {
	uc := NewLowPolyUseCase(repo, cache, renderer, zap.NewNop(), time.Minute)
	uc.initialBackoff = time.Millisecond
	uc.maxBackoff = 2 * time.Millisecond
	return uc
}

func TestProcessRendersAndCachesOnMiss(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}}
	repo := &stubRepository{}
	renderer := &stubRenderer{}
	uc := newTestUseCase(repo, cache, renderer)

	res, err := uc.Process(context.Background(), Upload{
		Filename:    "cat.png",
		ContentType: "image/png",
		Data:        pngBytes(t),
		Params:      imageprocessor.Params{NumPoints: 10, DetailLevel: 9},
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if res.CacheHit {
		t.Fatal("expected a fresh rendering")
	}
	if res.ContentType != ResultContentType {
		t.Fatalf("unexpected content type %q", res.ContentType)
	}
	wantParams := imageprocessor.Params{NumPoints: imageprocessor.MinNumPoints, DetailLevel: imageprocessor.MaxDetailLevel}
	if diff := cmp.Diff(wantParams, renderer.params); diff != "" {
		t.Fatalf("renderer params mismatch (-want +got):\n%s", diff)
	}
	if len(cache.setKeys) != 1 || cache.setKeys[0] != cache.getKeys[0] {
		t.Fatalf("expected result cached under lookup key, got set=%v get=%v", cache.setKeys, cache.getKeys)
	}
	if !bytes.Equal(cache.setValues[0], res.Image) {
		t.Fatal("cached bytes differ from returned image")
	}
	if len(repo.savedLogs) != 1 || !repo.savedLogs[0].Success {
		t.Fatalf("expected one successful log, got %+v", repo.savedLogs)
	}
}

func TestProcessServesCacheHitWithoutRendering(t *testing.T) {
	cache := &stubCache{getValues: []string{"jpeg-bytes"}}
	repo := &stubRepository{}
	renderer := &stubRenderer{}
	uc := newTestUseCase(repo, cache, renderer)

	res, err := uc.Process(context.Background(), Upload{ContentType: "image/jpeg", Data: []byte("anything"), Params: imageprocessor.DefaultParams()})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !res.CacheHit || string(res.Image) != "jpeg-bytes" {
		t.Fatalf("expected cached bytes, got %+v", res)
	}
	if renderer.calls != 0 {
		t.Fatalf("expected no rendering on cache hit, got %d calls", renderer.calls)
	}
	if len(repo.savedLogs) != 1 || !repo.savedLogs[0].CacheHit {
		t.Fatalf("expected cache hit to be logged, got %+v", repo.savedLogs)
	}
}

func TestProcessRetriesTransientCacheLookup(t *testing.T) {
	cache := &stubCache{getErrs: []error{transientRedisError{}, nil}, getValues: []string{"", "cached"}}
	uc := newTestUseCase(&stubRepository{}, cache, &stubRenderer{})

	res, err := uc.Process(context.Background(), Upload{ContentType: "image/png", Data: []byte("x"), Params: imageprocessor.DefaultParams()})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !res.CacheHit {
		t.Fatal("expected retry to reach the cached value")
	}
	if len(cache.getKeys) != 2 {
		t.Fatalf("expected 2 lookups, got %d", len(cache.getKeys))
	}
}

func TestProcessRejectsUnsupportedContentType(t *testing.T) {
	repo := &stubRepository{}
	renderer := &stubRenderer{}
	uc := newTestUseCase(repo, &stubCache{}, renderer)

	_, err := uc.Process(context.Background(), Upload{ContentType: "text/plain", Data: []byte("hello")})
	if !errors.Is(err, imageprocessor.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if got := logging.OperationOf(err); got != "usecase.validate" {
		t.Fatalf("unexpected operation %q", got)
	}
	if renderer.calls != 0 {
		t.Fatal("renderer must not run for rejected uploads")
	}
	if len(repo.savedLogs) != 1 || repo.savedLogs[0].Success {
		t.Fatalf("expected one failed log, got %+v", repo.savedLogs)
	}
}

func TestProcessReportsDecodeFailure(t *testing.T) {
	uc := newTestUseCase(&stubRepository{}, NopCache{}, &stubRenderer{})

	_, err := uc.Process(context.Background(), Upload{ContentType: "image/png", Data: []byte("garbage")})
	if !errors.Is(err, imageprocessor.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestProcessToleratesCacheWriteFailure(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}, setErrs: []error{errors.New("read only replica")}}
	uc := newTestUseCase(&stubRepository{saveErr: errors.New("db down")}, cache, &stubRenderer{})

	res, err := uc.Process(context.Background(), Upload{ContentType: "image/png", Data: pngBytes(t), Params: imageprocessor.DefaultParams()})
	if err != nil {
		t.Fatalf("expected success despite cache and db failures, got %v", err)
	}
	if len(res.Image) == 0 {
		t.Fatal("expected rendered bytes")
	}
}

func TestProcessWrapsRenderError(t *testing.T) {
	uc := newTestUseCase(&stubRepository{}, NopCache{}, &stubRenderer{err: errors.New("triangulation failed")})

	_, err := uc.Process(context.Background(), Upload{ContentType: "image/png", Data: pngBytes(t)})
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "usecase.render" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
}

func TestProcessWithTriangleRenderer(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	uc := newTestUseCase(NopRepository{}, NopCache{}, imageprocessor.NewTriangleRenderer(zap.NewNop(), 1))
	res, err := uc.Process(context.Background(), Upload{
		Filename:    "gradient.png",
		ContentType: "image/png",
		Data:        buf.Bytes(),
		Params:      imageprocessor.DefaultParams(),
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(res.Image)); err != nil {
		t.Fatalf("result is not a JPEG: %v", err)
	}
}

func TestGetMetricsSummary(t *testing.T) {
	repo := &stubRepository{aggregation: &repository.MetricsAggregation{
		TotalCount:       4,
		SuccessCount:     3,
		CacheHitCount:    1,
		AverageLatencyMs: 120,
	}}
	uc := newTestUseCase(repo, NopCache{}, &stubRenderer{})

	summary, err := uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &MetricsSummary{
		TotalRequests:      4,
		SuccessfulRequests: 3,
		SuccessRate:        0.75,
		CacheHitRate:       0.25,
		AverageLatencyMs:   120,
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMetricsSummaryEmpty(t *testing.T) {
	uc := newTestUseCase(NopRepository{}, NopCache{}, &stubRenderer{})

	summary, err := uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.SuccessRate != 0 || summary.TotalRequests != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}
