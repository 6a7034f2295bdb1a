//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yuvsnap/capture"
	"yuvsnap/config"
	"yuvsnap/v4l2"
)

var _ capture.FrameSource = (*v4l2.Device)(nil)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if len(os.Args) > 1 {
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			return err
		}
		cfg = *loaded
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev := v4l2.NewDevice(cfg.Buffers, logger)
	sess, err := capture.New(dev,
		capture.Config{Width: cfg.Width, Height: cfg.Height, Device: cfg.Device},
		capture.WithLogger(logger),
		capture.WithAcquireTimeout(cfg.AcquireTimeout),
	)
	if err != nil {
		return err
	}

	if err := sess.Init(); err != nil {
		return err
	}
	if err := sess.Start(); err != nil {
		_ = sess.Stop()
		return err
	}
	defer func() {
		if err := sess.Stop(); err != nil {
			logger.Error("capture: stop failed", "error", err)
		}
	}()

	for i := 1; i <= cfg.Captures; i++ {
		path := cfg.FramePath(i)
		if cfg.Raw {
			if err := dumpRaw(ctx, sess, path+".yuyv"); err != nil {
				logger.Error("capture: raw dump failed", "frame", i, "error", err)
			}
		}
		if err := sess.CaptureAndSave(ctx, path, cfg.Quality); err != nil {
			// One bad frame does not end the run.
			logger.Error("capture: frame failed", "frame", i, "path", path, "error", err)
		}
		if ctx.Err() != nil {
			break
		}
		if i < cfg.Captures {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.Interval):
			}
		}
	}

	st := sess.Stats()
	logger.Info("capture: done",
		"saved", st.Saved,
		"requested", cfg.Captures,
		"acquired", st.Acquired,
		"released", st.Released,
	)
	return nil
}

func dumpRaw(ctx context.Context, sess *capture.Session, path string) error {
	frame, err := sess.CaptureFrame(ctx)
	if err != nil {
		return err
	}
	return os.WriteFile(path, frame, 0o644)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
