// Command stepform serves the site with its live multi-step contact form.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/config"
	"github.com/gabrielmiguelok/stepform/pkg/dom"
	"github.com/gabrielmiguelok/stepform/pkg/logging"
	"github.com/gabrielmiguelok/stepform/pkg/metrics"
	"github.com/gabrielmiguelok/stepform/pkg/server"
	"github.com/gabrielmiguelok/stepform/pkg/shutdown"
	"github.com/gabrielmiguelok/stepform/pkg/site"
)

var version = "0.1.0"

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "check":
		if err := runCheck(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "render":
		path := "/"
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		if err := runRender(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "version", "-v", "--version":
		fmt.Printf("stepform v%s\n", version)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`stepform v%s

Usage: stepform [command]

Commands:
  serve            Start the server (default)
  check            Validate the configuration and form definition
  render [path]    Print the annotated HTML of a page
  version          Show version
  help             Show this help

Configuration is read from STEPFORM_* environment variables,
e.g. STEPFORM_ADDR=:8080 STEPFORM_FORM_DEFINITION=form.yaml.
`, version)
}

// app holds what every command builds from the configuration.
type app struct {
	cfg  config.Config
	log  logging.Logger
	site *site.Site
}

func load() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	def, err := cfg.Definition()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger()
	logging.SetDefault(log)

	return &app{cfg: cfg, log: log, site: site.New(def)}, nil
}

func runServe() error {
	a, err := load()
	if err != nil {
		return err
	}
	cfg := a.cfg

	opts, err := cfg.StepperOptions(a.site.Definition())
	if err != nil {
		return err
	}
	codecs, err := cfg.Codecs()
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	lim := server.Limits{
		ConnectionsPerIP: cfg.MaxConnectionsPerIP,
		TrustProxy:       cfg.TrustProxy,
		EventRate:        cfg.EventRate,
		EventBurst:       cfg.EventBurst,
		SubmitRate:       cfg.SubmitRate,
		SubmitBurst:      cfg.SubmitBurst,
	}

	srv := server.New(server.Options{
		Site:           a.site,
		Stepper:        opts,
		Transport:      cfg.Transport(),
		WebSocket:      cfg.WebSocket(),
		Codecs:         codecs,
		FrameInterval:  cfg.FrameInterval,
		MaxConnections: cfg.MaxConnections,
		Limits:         lim,
		Metrics:        m,
		Logger:         a.log,
		Version:        version,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sh := shutdown.New(shutdown.Config{
		Timeout: cfg.ShutdownTimeout,
		Logger:  a.log,
	})
	sh.Add(shutdown.StageHTTP, "http", httpServer.Shutdown)
	sh.Add(shutdown.StageLive, "live", func(context.Context) error {
		srv.CloseConnections()
		return nil
	})

	errc := make(chan error, 1)
	go func() {
		a.log.Info("listening",
			logging.String("addr", cfg.Addr),
			logging.String("codec", cfg.Codec),
			logging.Int("steps", len(a.site.Definition().Steps)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	done := make(chan error, 1)
	go func() { done <- sh.Wait(context.Background()) }()

	if err, failed := <-errc; failed {
		_ = sh.Run()
		<-done
		return fmt.Errorf("listen: %w", err)
	}

	// The listener stopped because shutdown began.
	if err := <-done; err != nil {
		return err
	}
	a.log.Info("stopped")
	return nil
}

func runCheck() error {
	a, err := load()
	if err != nil {
		return err
	}
	def := a.site.Definition()
	if _, err := a.cfg.StepperOptions(def); err != nil {
		return err
	}

	fmt.Printf("form %q posts to %s\n", def.Name, def.Action)
	for i, step := range def.Steps {
		fmt.Printf("  %d. %-10s %-8s %d rule(s)\n", i+1, step.Field, step.InputType(), len(step.Rules))
	}
	fmt.Printf("pages: %v\n", a.site.Paths())
	return nil
}

func runRender(path string) error {
	a, err := load()
	if err != nil {
		return err
	}
	page, err := a.site.Render(path)
	if err != nil {
		return err
	}
	page, err = dom.Annotate(page)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(page)
	return err
}
