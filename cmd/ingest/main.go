// Command ingest loads local .txt and .pdf files into the collection through
// the same pipeline the HTTP server uses, or hands them to a running server
// over NATS with -publish.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/WessleyAI/ragchat/engine/app"
	"github.com/WessleyAI/ragchat/engine/ingest"
	"github.com/WessleyAI/ragchat/pkg/config"
	"github.com/WessleyAI/ragchat/pkg/natsutil"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

// flushTimeout bounds the wait for the server to acknowledge published files.
const flushTimeout = 10 * time.Second

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (defaults to $CONFIG_FILE)")
		reset      = flag.Bool("reset", false, "empty the collection before ingesting")
		publish    = flag.Bool("publish", false, "publish files to "+ingest.IngestSubject+" instead of ingesting locally")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: ingest [-config f] [-reset] [-publish] file...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := cfg.NewLogger(os.Stderr)
	slog.SetDefault(log)

	if flag.NArg() == 0 && !*reset {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *publish {
		err = runPublish(ctx, cfg, flag.Args(), os.Stdout)
	} else {
		err = runLocal(ctx, cfg, log, *reset, flag.Args(), os.Stdout)
	}
	if err != nil {
		log.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

// runLocal ingests files in order and stops at the first failure.
func runLocal(ctx context.Context, cfg config.Config, log *slog.Logger, reset bool, files []string, out io.Writer) error {
	a, err := app.Build(ctx, cfg, log, app.Options{Probe: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if reset {
		if err := a.Collection.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "collection reset")
	}

	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		n, err := a.Collection.Ingest(ctx, name, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: %d chunks\n", path, n)
	}

	total, err := a.Collection.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "collection %s: %d chunks\n", a.Store.Collection(), total)
	return nil
}

func runPublish(ctx context.Context, cfg config.Config, files []string, out io.Writer) error {
	if cfg.NATSURL == "" {
		return fmt.Errorf("-publish needs NATS_URL")
	}
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("ragchat-ingest"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		req := ingest.IngestRequest{Filename: filepath.Base(path), Content: raw}
		if err := natsutil.Publish(ctx, nc, ingest.IngestSubject, req); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: queued\n", path)
	}
	return nc.FlushTimeout(flushTimeout)
}
