package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/lowpoly/internal/form"
	"github.com/example/lowpoly/internal/preview"
)

type options struct {
	server      string
	file        string
	numPoints   int
	detailLevel int
	out         string
	interactive bool
	timeout     time.Duration
}

// run drives one form session: select, submit, save.
func run(ctx context.Context, opts options, transport form.Transport, logger *zap.Logger, out io.Writer) error {
	ctrl := form.NewController(transport, preview.NewMemoryStore(), logger)
	defer ctrl.Close()
	unsubscribe := ctrl.Subscribe(newStatusView(out, logger))
	defer unsubscribe()

	ctrl.SetNumPoints(opts.numPoints)
	ctrl.SetDetailLevel(opts.detailLevel)

	if opts.file != "" {
		file, err := loadFile(opts.file)
		if err != nil {
			return err
		}
		if err := ctrl.SelectFile(file); err != nil {
			return err
		}
	}

	if err := ctrl.Submit(ctx); err != nil {
		return err
	}

	img, ok := ctrl.ProcessedImage()
	if !ok {
		return fmt.Errorf("no processed image")
	}
	path := outputPath(opts)
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(out, "processed image written to %s\n", path)
	return nil
}

// newStatusView is the terminal binding for the loading indicator and the
// error text.
func newStatusView(out io.Writer, logger *zap.Logger) form.Observer {
	var prev form.State
	return func(s form.State) {
		if s.OriginalPreviewURL != prev.OriginalPreviewURL && s.SelectedFile != nil {
			logger.Debug("file selected", zap.String("file", s.SelectedFile.Name), zap.Int("bytes", len(s.SelectedFile.Data)))
		}
		if s.IsLoading && !prev.IsLoading {
			fmt.Fprintf(out, "processing (points=%d, detail=%d)...\n", s.NumPoints, s.DetailLevel)
		}
		if s.ErrorMessage != "" && s.ErrorMessage != prev.ErrorMessage {
			fmt.Fprintln(out, s.ErrorMessage)
		}
		if s.ProcessedPreviewURL != "" && s.ProcessedPreviewURL != prev.ProcessedPreviewURL {
			logger.Debug("processed preview ready", zap.String("url", s.ProcessedPreviewURL))
		}
		prev = s
	}
}

func loadFile(path string) (*form.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &form.File{Name: filepath.Base(path), ContentType: contentType, Data: data}, nil
}

func outputPath(opts options) string {
	if opts.out != "" {
		return opts.out
	}
	name := "image"
	dir := "."
	if opts.file != "" {
		dir = filepath.Dir(opts.file)
		name = strings.TrimSuffix(filepath.Base(opts.file), filepath.Ext(opts.file))
	}
	return filepath.Join(dir, name+"_low_poly.jpg")
}
