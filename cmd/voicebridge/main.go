package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codewandler/voicebridge-go"
	"github.com/codewandler/voicebridge-go/audio"
	"github.com/codewandler/voicebridge-go/config"
	"github.com/codewandler/voicebridge-go/internal/metrics"
	"github.com/codewandler/voicebridge-go/tool/openclaw"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configPath  = ""
		listen      = "127.0.0.1:8765"
		debug       = false
		mic         = "-"
		micRate     = audio.InputRate
		speaker     = ""
		speakerRate = audio.OutputRate
		autostart   = false
	)

	flag.StringVar(&configPath, "config", configPath, "path to a YAML settings file")
	flag.StringVar(&listen, "listen", listen, "address of the trigger HTTP server")
	flag.BoolVar(&debug, "debug", debug, "enable debug logs")
	flag.StringVar(&mic, "mic", mic, "raw 16-bit mono PCM input (file, FIFO or - for stdin)")
	flag.IntVar(&micRate, "mic-rate", micRate, "input sample rate")
	flag.StringVar(&speaker, "speaker", speaker, "raw 16-bit mono PCM output file (empty discards audio)")
	flag.IntVar(&speakerRate, "speaker-rate", speakerRate, "output sample rate")
	flag.BoolVar(&autostart, "autostart", autostart, "start a session right away")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.LevelInfo)
	gin.SetMode(gin.ReleaseMode)
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		gin.SetMode(gin.DebugMode)
	}

	if err := run(configPath, listen, mic, micRate, speaker, speakerRate, autostart); err != nil {
		slog.Error("voicebridge failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(configPath, listen, mic string, micRate int, speaker string, speakerRate int, autostart bool) error {
	settings := config.FileProvider{Path: configPath}
	initial, err := settings.Snapshot()
	if err != nil {
		return err
	}

	logger := slog.Default()
	collector := metrics.NewCollector("voicebridge")

	bridge := openclaw.New(openclaw.ConfigFrom(initial.OpenClaw))
	capture := audio.NewStreamCapture(micOpener(mic), audio.CaptureConfig{
		SourceRate: micRate,
		Logger:     logger,
	})
	playback := audio.NewRingPlayback(speakerRate, 2*time.Second)

	session := voicebridge.New(capture, playback, bridge,
		voicebridge.WithLogger(logger),
		voicebridge.WithMetrics(collector),
		voicebridge.WithSettings(settings),
	)

	out, err := speakerWriter(speaker)
	if err != nil {
		return err
	}
	defer out.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              listen,
		Handler:           newRouter(session, collector),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("trigger server listening", slog.String("addr", listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		session.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := playback.Pump(gctx, out, 20*time.Millisecond)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logStatus(gctx, logger, session.Subscribe(gctx))
		return nil
	})

	if autostart {
		g.Go(func() error {
			if err := session.Start(gctx); err != nil {
				logger.Error("autostart failed", slog.Any("err", err))
			}
			return nil
		})
	}

	return g.Wait()
}

// logStatus logs phase and connection changes; the periodic republish of an
// unchanged status stays quiet.
func logStatus(ctx context.Context, logger *slog.Logger, updates <-chan voicebridge.Status) {
	var last voicebridge.Status
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if st.Phase == last.Phase && st.Connection == last.Connection {
				continue
			}
			last = st
			logger.Info("session status",
				slog.String("phase", st.Phase.String()),
				slog.String("connection", st.Connection.String()),
				slog.String("last_error", st.LastError),
			)
		}
	}
}

func micOpener(path string) audio.Opener {
	return func() (io.ReadCloser, error) {
		if path == "-" {
			return io.NopCloser(os.Stdin), nil
		}
		return os.Open(path)
	}
}

func speakerWriter(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopWriteCloser{io.Discard}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
