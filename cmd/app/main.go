package main

import (
	"context"
	"flag"
	"fmt"
	"image/jpeg"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"incremental-photo-engine/internal/config"
	"incremental-photo-engine/internal/export"
	"incremental-photo-engine/internal/imaging"
	appio "incremental-photo-engine/internal/io"
	"incremental-photo-engine/internal/memwatch"
	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/render"
	"incremental-photo-engine/internal/verify"
)

const (
	AppName    = "Incremental Photo Engine"
	AppVersion = "1.0.0"
)

const thumbnailEdge = 320

func main() {
	inputPath := flag.String("input", "", "Source image path")
	maskPath := flag.String("mask", "", "Optional grayscale subject mask path")
	presetPath := flag.String("preset", "", "TOML preset with adjustment parameters")
	outPath := flag.String("out", "", "Output image path")
	exportMode := flag.Bool("export", false, "Export at native resolution and exit")
	watchMode := flag.Bool("watch", false, "Watch the preset file and re-render previews on change")
	verifyMode := flag.Bool("verify", false, "Compare incremental against full renders and report metrics")
	configPath := flag.String("config", "", "TOML engine configuration")
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	flag.Parse()

	logger := initLogger(*debugMode)
	slogger := initSlog(*debugMode)
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": *debugMode,
	}).Info("Starting " + AppName)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load configuration")
		}
		cfg = loaded
	}

	if *inputPath == "" {
		logger.Fatal("No input image given, use -input")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := appio.NewImageLoader(slogger)
	if err := loader.ValidateImageFile(*inputPath); err != nil {
		logger.WithError(err).WithField("path", *inputPath).Fatal("Input rejected")
	}
	input, err := loader.LoadImage(*inputPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load input")
	}
	defer input.Close()

	var mask *imaging.Buffer
	if *maskPath != "" {
		mask, err = loader.LoadMask(*maskPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load mask")
		}
		defer mask.Close()
	}

	p := params.Defaults()
	if *presetPath != "" {
		p, err = config.LoadPreset(*presetPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load preset")
		}
	}

	switch {
	case *exportMode:
		err = runExport(ctx, slogger, cfg, input, mask, p, *outPath)
	case *verifyMode:
		err = runVerify(ctx, logger, slogger, cfg, input, mask, p)
	case *watchMode:
		err = runWatch(ctx, logger, slogger, cfg, loader, input, mask, *presetPath, *outPath)
	default:
		err = runRender(ctx, logger, slogger, cfg, loader, input, mask, p, *outPath)
	}
	if err != nil {
		logger.WithError(err).Fatal("Run failed")
	}

	logger.Info("Application shutting down gracefully")
}

// runRender does one render pass through the staged pipeline and
// optionally saves the result.
func runRender(ctx context.Context, logger *logrus.Logger, slogger *slog.Logger, cfg config.Config, loader *appio.ImageLoader, input, mask *imaging.Buffer, p *params.Params, outPath string) error {
	eng, err := render.New(cfg.CacheLimitBytes(), slogger)
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Process(ctx, input, mask, p)
	if err != nil {
		return err
	}
	defer res.Output.Close()

	logRenderResult(logger, res)
	if outPath != "" {
		return loader.SaveImage(res.Output, outPath)
	}
	return nil
}

// runExport renders at native resolution outside the preview cache.
func runExport(ctx context.Context, slogger *slog.Logger, cfg config.Config, input, mask *imaging.Buffer, p *params.Params, outPath string) error {
	if outPath == "" {
		return fmt.Errorf("export needs -out")
	}
	x := export.New(slogger)
	return x.Export(ctx, input, mask, p, export.Options{
		Path:           outPath,
		JPEGQuality:    cfg.JPEGQuality,
		PNGCompression: cfg.PNGCompression,
	})
}

// runVerify renders the same parameters twice, once through the
// incremental path with a warm diff baseline and once through a fresh
// engine with caching out of the picture, then scores the two outputs
// against each other.
func runVerify(ctx context.Context, logger *logrus.Logger, slogger *slog.Logger, cfg config.Config, input, mask *imaging.Buffer, p *params.Params) error {
	eng, err := render.New(cfg.CacheLimitBytes(), slogger)
	if err != nil {
		return err
	}
	defer eng.Close()

	base, err := eng.Process(ctx, input, mask, params.Defaults())
	if err != nil {
		return fmt.Errorf("baseline render: %w", err)
	}
	base.Output.Close()

	incr, err := eng.Process(ctx, input, mask, p)
	if err != nil {
		return fmt.Errorf("incremental render: %w", err)
	}
	defer incr.Output.Close()

	fresh, err := render.New(cfg.CacheLimitBytes(), slogger)
	if err != nil {
		return err
	}
	defer fresh.Close()

	full, err := fresh.ProcessFull(ctx, input, mask, p)
	if err != nil {
		return fmt.Errorf("full render: %w", err)
	}
	defer full.Output.Close()

	logger.WithFields(logrus.Fields{
		"incremental_executed": incr.StagesExecuted,
		"incremental_skipped":  incr.StagesSkipped,
		"full_executed":        full.StagesExecuted,
	}).Info("Verification renders complete")

	ev := verify.NewEvaluator()
	scores := ev.CalculateAll(full.Output.Mat(), incr.Output.Mat())
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := scores[name]
		if math.IsInf(v, 1) {
			fmt.Printf("%-6s identical\n", name)
			continue
		}
		fmt.Printf("%-6s %.4f\n", name, v)
	}
	return nil
}

// runWatch drives an interactive session from preset file edits.
func runWatch(ctx context.Context, logger *logrus.Logger, slogger *slog.Logger, cfg config.Config, loader *appio.ImageLoader, input, mask *imaging.Buffer, presetPath, outPath string) error {
	if presetPath == "" {
		return fmt.Errorf("watch needs -preset")
	}
	if outPath == "" {
		outPath = "preview.png"
	}

	eng, err := render.New(cfg.CacheLimitBytes(), slogger)
	if err != nil {
		return err
	}
	defer eng.Close()

	sess := render.NewSession(eng, cfg.Debounce(), cfg.PreviewEdge, slogger)
	defer sess.Close()

	sess.OnPreview(func(res *render.Result) {
		defer res.Output.Close()
		logRenderResult(logger, res)
		if err := loader.SaveImage(res.Output, outPath); err != nil {
			logger.WithError(err).Warn("Preview save failed")
			return
		}
		saveThumbnail(logger, res.Output, outPath)
	})
	sess.OnError(func(err error) {
		logger.WithError(err).Warn("Render failed")
	})

	// The session owns its copies, the CLI keeps the originals for
	// the deferred closes above.
	srcCopy := input.Clone()
	var maskCopy *imaging.Buffer
	if mask != nil {
		maskCopy = mask.Clone()
	}
	if err := sess.SetSource(srcCopy, maskCopy); err != nil {
		return err
	}

	watcher := memwatch.New(cfg.MemInterval(), cfg.MemPressurePct, slogger)
	watcher.Register(eng.Cache())
	go watcher.Run(ctx)

	p, err := config.LoadPreset(presetPath)
	if err != nil {
		return err
	}
	sess.Submit(p)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	// Watch the directory, not the file: editors that replace on save
	// would otherwise detach the watch.
	if err := fw.Add(filepath.Dir(presetPath)); err != nil {
		return err
	}
	base := filepath.Base(presetPath)

	logger.WithField("preset", presetPath).Info("Watching preset for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			p, err := config.LoadPreset(presetPath)
			if err != nil {
				logger.WithError(err).Warn("Preset reload failed")
				continue
			}
			sess.Submit(p)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Watch error")
		}
	}
}

func saveThumbnail(logger *logrus.Logger, buf *imaging.Buffer, outPath string) {
	th, err := imaging.Thumbnail(buf, thumbnailEdge)
	if err != nil {
		logger.WithError(err).Debug("Thumbnail skipped")
		return
	}
	thumbPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + "_thumb.jpg"
	f, err := os.Create(thumbPath)
	if err != nil {
		logger.WithError(err).Debug("Thumbnail skipped")
		return
	}
	defer f.Close()
	if err := jpeg.Encode(f, th, &jpeg.Options{Quality: 85}); err != nil {
		logger.WithError(err).Debug("Thumbnail encode failed")
	}
}

func logRenderResult(logger *logrus.Logger, res *render.Result) {
	logger.WithFields(logrus.Fields{
		"executed":   res.StagesExecuted,
		"skipped":    res.StagesSkipped,
		"cache_hits": res.CacheHits,
		"elapsed":    res.Elapsed,
	}).Info("Render complete")
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

// initSlog builds the logger handed to the internal packages, matching
// the logrus shell's level and text-or-JSON split.
func initSlog(debugMode bool) *slog.Logger {
	if debugMode {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
