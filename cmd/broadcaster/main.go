package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alxayo/go-broadcaster/internal/engine"
	"github.com/alxayo/go-broadcaster/internal/logger"
)

const (
	commandChanCapacity = 64  // spec §5
	eventChanCapacity   = 256 // spec §5
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBroadcast(ctx context.Context, opts *runOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	logger.Init()
	if err := logger.SetLevel(opts.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid log level %q, using default\n", opts.logLevel)
	}
	runID := uuid.NewString()
	log := logger.Logger().With("component", "cli", "run_id", runID)

	commandCh := make(chan engine.Command, commandChanCapacity)
	eventCh := make(chan engine.Event, eventChanCapacity)

	eng := engine.New(commandCh, eventCh)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commandCh <- engine.Command{Kind: engine.CmdStart, Config: opts.streamConfig()}
	log.Info("start requested", "rtmp_url", opts.rtmpURL, "source", opts.videoSource)

	for {
		select {
		case evt, ok := <-eventCh:
			if !ok {
				return nil
			}
			logEvent(log, evt)
			if evt.Kind == engine.EvtShutdown {
				<-engineDone
				return nil
			}
			if evt.Kind == engine.EvtStateChanged && evt.CurrentState == engine.StateError {
				close(commandCh)
				<-engineDone
				return fmt.Errorf("stream entered error state: %s", evt.Message)
			}
		case <-sigCtx.Done():
			log.Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			commandCh <- engine.Command{Kind: engine.CmdShutdown}
			select {
			case <-engineDone:
				log.Info("engine stopped cleanly")
			case <-shutdownCtx.Done():
				log.Error("forced exit after shutdown timeout")
			}
			cancel()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func logEvent(log interface {
	Info(string, ...any)
	Warn(string, ...any)
	Error(string, ...any)
}, evt engine.Event) {
	switch evt.Kind {
	case engine.EvtStateChanged:
		log.Info("state changed", "previous", evt.PreviousState.String(), "current", evt.CurrentState.String())
	case engine.EvtMetrics:
		log.Info("metrics",
			"fps", evt.Metrics.FPS,
			"bitrate_kbps", evt.Metrics.BitrateKbps,
			"dropped_frames", evt.Metrics.DroppedFrames,
			"capture_drops", evt.Metrics.CaptureDrops,
			"encode_drops", evt.Metrics.EncodeDrops,
			"network_drops", evt.Metrics.NetworkDrops,
			"uptime_s", evt.Metrics.UptimeSeconds)
	case engine.EvtPerformanceWarning:
		log.Warn("performance warning", "kind", evt.Warning.Kind, "percent", evt.Warning.Percent)
	case engine.EvtError:
		log.Error("engine error", "recoverable", evt.Recoverable, "message", evt.Message)
	case engine.EvtCaptureSources:
		log.Info("capture sources", "count", len(evt.CaptureSources))
	case engine.EvtAudioDevices:
		log.Info("audio devices", "count", len(evt.AudioDevices))
	case engine.EvtReady:
		log.Info("engine ready")
	case engine.EvtShutdown:
		log.Info("engine shutdown")
	}
}
