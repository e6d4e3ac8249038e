package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/genqr/genqr/api"
	"github.com/genqr/genqr/config"
	"github.com/genqr/genqr/preview"
	"github.com/genqr/genqr/qr"
	"github.com/genqr/genqr/store"
)

var version = "v0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "genqr",
		Short: "Render QR codes that fit the page, then download or copy them",
	}

	// --- serve command -------------------------------------------------------
	var configPath string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the QR preview web service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	root.AddCommand(serveCmd)

	// --- render command ------------------------------------------------------
	var ro renderOptions
	renderCmd := &cobra.Command{
		Use:   "render [text]",
		Short: "Render text to a PNG file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				ro.text = args[0]
			}
			ro.sizeSet = cmd.Flags().Changed("size")
			if ro.watch == "" && len(args) == 0 {
				return fmt.Errorf("text argument or --watch is required")
			}
			return runRender(cmd.Context(), ro)
		},
	}
	renderCmd.Flags().StringVarP(&ro.filename, "filename", "f", qr.DefaultFilename, "Output file name (sanitized, .png appended)")
	renderCmd.Flags().StringVarP(&ro.outDir, "out-dir", "o", ".", "Directory to write the PNG into")
	renderCmd.Flags().Float64Var(&ro.width, "width", 800, "Viewport width in pixels")
	renderCmd.Flags().Float64Var(&ro.height, "height", 800, "Viewport height in pixels")
	renderCmd.Flags().StringVar(&ro.container, "container", "", "Container box as WxH; takes precedence over the viewport")
	renderCmd.Flags().IntVar(&ro.size, "size", 0, "Explicit size in pixels (clamped to 96..2048)")
	renderCmd.Flags().StringVarP(&ro.level, "level", "l", "M", "Error correction level: L, M, Q or H")
	renderCmd.Flags().BoolVarP(&ro.terminal, "terminal", "t", false, "Also print the code to the terminal")
	renderCmd.Flags().StringVarP(&ro.watch, "watch", "w", "", "Read text from this file and re-render whenever it changes")
	renderCmd.Flags().DurationVar(&ro.debounce, "debounce", preview.DefaultDebounce, "Quiet period before re-rendering a watched file")
	root.AddCommand(renderCmd)

	// --- status command ------------------------------------------------------
	var statusAddr string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(statusAddr + "/status")
		},
	}
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8565", "Service HTTP address")
	root.AddCommand(statusCmd)

	// --- history command -----------------------------------------------------
	var historyAddr, historyQuery string
	var historyLimit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent downloads from a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(historyLimit))
			path := "/history"
			if historyQuery != "" {
				path = "/history/search"
				q.Set("q", historyQuery)
			}
			return runGet(historyAddr + path + "?" + q.Encode())
		},
	}
	historyCmd.Flags().StringVar(&historyAddr, "addr", "http://localhost:8565", "Service HTTP address")
	historyCmd.Flags().StringVarP(&historyQuery, "query", "q", "", "Full-text search instead of listing")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries")
	root.AddCommand(historyCmd)

	// --- version command -----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("genqr %s\n", version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// runServe is the service entrypoint that wires all components together.
func runServe(configPath string) error {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Setup logger
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	log.Info("starting genqr", "version", version, "port", cfg.Port, "data_dir", cfg.DataDir)

	level, err := qr.ParseLevel(cfg.RecoveryLevel)
	if err != nil {
		return err
	}

	// 3. Open history store
	var history *store.HistoryStore
	if cfg.History.Enabled {
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("ensure data dir: %w", err)
		}
		history, err = store.NewHistoryStore(cfg.HistoryPath())
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer history.Close()
	}

	// 4. Start HTTP server
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(&api.Server{
			Store:           history,
			Log:             log,
			Version:         version,
			Level:           level,
			Debounce:        cfg.ResizeDebounce.Duration,
			DefaultFilename: cfg.DefaultFilename,
			HistoryLimit:    cfg.History.Limit,
			RateRPS:         cfg.RateLimit.RPS,
			RateBurst:       cfg.RateLimit.Burst,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("preview page ready", "url", fmt.Sprintf("http://localhost:%d/", cfg.Port))

	// 5. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	log.Info("goodbye")
	return nil
}

type renderOptions struct {
	text      string
	filename  string
	outDir    string
	width     float64
	height    float64
	container string
	size      int
	sizeSet   bool
	level     string
	terminal  bool
	watch     string
	debounce  time.Duration
}

func (o renderOptions) viewport() (qr.Viewport, error) {
	if o.sizeSet {
		s := float64(qr.Clamp(o.size))
		return qr.Viewport{Container: &qr.Rect{Width: s, Height: s}}, nil
	}
	vp := qr.Viewport{Width: o.width, Height: o.height}
	if o.container != "" {
		w, h, ok := strings.Cut(strings.ToLower(o.container), "x")
		cw, errW := strconv.ParseFloat(w, 64)
		ch, errH := strconv.ParseFloat(h, 64)
		if !ok || errW != nil || errH != nil {
			return vp, fmt.Errorf("invalid --container %q, want WxH", o.container)
		}
		vp.Container = &qr.Rect{Width: cw, Height: ch}
	}
	return vp, nil
}

// runRender writes the PNG for o.text, or for the watched file's contents on
// every change when o.watch is set.
func runRender(ctx context.Context, o renderOptions) error {
	log := newLogger(os.Getenv(config.EnvPrefix + "LOG_LEVEL"))

	level, err := qr.ParseLevel(o.level)
	if err != nil {
		return err
	}
	vp, err := o.viewport()
	if err != nil {
		return err
	}
	renderer := preview.NewRenderer(level)

	if o.watch == "" {
		return renderOnce(renderer, o, vp)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("watching for changes", "file", o.watch)
	return preview.WatchFile(ctx, o.watch, o.debounce, func(text string) {
		o.text = strings.TrimRight(text, "\r\n")
		if err := renderOnce(renderer, o, vp); err != nil {
			log.Warn("render failed", "error", err)
		}
	}, log)
}

func renderOnce(renderer *preview.Renderer, o renderOptions, vp qr.Viewport) error {
	frame, err := renderer.Render(o.text, vp)
	if err != nil {
		return err
	}
	if !frame.ControlsEnabled {
		return fmt.Errorf("nothing to render: text is empty")
	}

	data, ok, err := qr.Export(frame.Canvas, nil, frame.Size)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("nothing to render")
	}

	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(o.outDir, qr.SanitizeFilename(o.filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	fmt.Printf("%s (%dx%d)\n", path, frame.Size, frame.Size)

	if o.terminal {
		printTerminal(o.text, o.level)
	}
	return nil
}

// printTerminal draws text with half blocks. qrterminal has no Q level, so
// Q is drawn at H.
func printTerminal(text, level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "L", "LOW":
		qrterminal.GenerateHalfBlock(text, qrterminal.L, os.Stdout)
	case "Q", "H", "HIGH", "HIGHEST":
		qrterminal.GenerateHalfBlock(text, qrterminal.H, os.Stdout)
	default:
		qrterminal.GenerateHalfBlock(text, qrterminal.M, os.Stdout)
	}
}

// runGet fetches a service endpoint and prints the body.
func runGet(u string) error {
	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("failed to reach service at %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}
