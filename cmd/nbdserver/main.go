// Command nbdserver runs the NBD server against a directory of
// filesystem-backed images. It is a thin host program: argument
// parsing and logging setup live here, never inside the core.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nbdserver/nbdserver/internal/driver"
	"github.com/nbdserver/nbdserver/internal/metrics"
	"github.com/nbdserver/nbdserver/internal/nbdserver"
	"github.com/nbdserver/nbdserver/internal/wire"
)

func main() {
	port := flag.Int("port", wire.DefaultPort, "TCP port to listen on")
	root := flag.String("root", ".", "directory of images served by the fs driver")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if *verbose {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	if err := run(*port, *root, log); err != nil {
		log.Fatal().Err(err).Msg("nbdserver exited with error")
	}
}

func run(port int, root string, log zerolog.Logger) error {
	fsDriver, err := driver.Default().Get("fs", driver.Config{"root": root})
	if err != nil {
		return err
	}

	srv := nbdserver.NewServerBuilder().
		WithPort(port).
		WithLogger(log).
		WithMetrics(metrics.New("nbdserver")).
		Build()

	srv.State().SetDefaultDriver(fsDriver)

	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := filepath.Base(entry.Name())
		desc, err := fsDriver.GetImage(context.Background(), name)
		if err != nil {
			log.Warn().Str("file", name).Err(err).Msg("skipping unreadable image")
			continue
		}
		srv.State().AddImage(fsDriver, desc)
		log.Info().Str("image", desc.String()).Msg("exporting image")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}
