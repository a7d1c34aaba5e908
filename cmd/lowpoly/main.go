// Command lowpoly uploads an image to the low-poly service and saves the
// rendered result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/lowpoly/internal/client"
	"github.com/example/lowpoly/internal/config"
	"github.com/example/lowpoly/internal/form"
	"github.com/example/lowpoly/internal/logging"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var opts options
	flag.StringVar(&opts.server, "server", cfg.ServerURL, "low-poly service base URL")
	flag.StringVar(&opts.file, "file", "", "image to upload (JPEG or PNG)")
	flag.IntVar(&opts.numPoints, "num-points", form.DefaultNumPoints, "number of points")
	flag.IntVar(&opts.detailLevel, "detail-level", form.DefaultDetailLevel, "detail level")
	flag.StringVar(&opts.out, "out", "", "output path (default <name>_low_poly.jpg)")
	flag.BoolVar(&opts.interactive, "interactive", false, "prompt for the inputs")
	flag.DurationVar(&opts.timeout, "timeout", cfg.Timeout, "request timeout")
	flag.Parse()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.interactive || opts.file == "" {
		if err := newSurveyPrompter().Ask(ctx, &opts); err != nil {
			logger.Fatal("prompt failed", zap.Error(err))
		}
	}

	transport := client.New(opts.server,
		client.WithHTTPClient(&http.Client{Timeout: opts.timeout}),
		client.WithLogger(logger),
	)
	if err := run(ctx, opts, transport, logger, os.Stdout); err != nil {
		var validationErr *form.ValidationError
		if !errors.As(err, &validationErr) {
			logger.Error("low poly request failed", zap.Error(err))
		}
		stop()
		os.Exit(1)
	}
}
