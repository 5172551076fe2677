// Command edgedb-ping is a minimal smoke-test binary: connect, run
// `select 1`, and print the result. Grounded in the pack's
// danmuck-edgectl main.go — a tiny binary wrapping the library, not a
// real CLI surface (the query-builder/config/CLI layers stay external
// collaborators per spec.md §1). CLI-facing progress lines go through
// zerolog's console writer, the pack's second logging stack
// (danmuck-edgectl/internal/observability/logger.go), kept separate
// from the driver's own log/slog-based Logger passed into Options.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"

	edgedb "github.com/goerch/edgedb-net"
)

func main() {
	addr := flag.String("addr", "localhost:5656", "server address, host:port")
	user := flag.String("user", "edgedb", "username")
	pass := flag.String("password", "", "password")
	db := flag.String("database", "edgedb", "database/branch name")
	insecure := flag.Bool("insecure-skip-verify", false, "skip TLS certificate verification")
	timeout := flag.Duration("timeout", 10*time.Second, "connect timeout")
	flag.Parse()

	cli := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("app", "edgedb-ping").Logger()

	opts := edgedb.DefaultOptions()
	opts.Address = *addr
	opts.Username = *user
	opts.Password = *pass
	opts.Database = *db
	opts.ConnectTimeout = *timeout
	opts.TLS = &edgedb.TLSOptions{InsecureSkipVerify: *insecure}
	opts.Logger = edgedb.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cli.Info().Str("address", *addr).Msg("connecting")

	client, err := edgedb.NewClient(opts)
	if err != nil {
		cli.Fatal().Err(err).Msg("building client")
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := edgedb.QuerySingleInto[int64](ctx, client, "select 1")
	if err != nil {
		cli.Fatal().Err(err).Msg("query failed")
	}
	cli.Info().Int64("result", result).Msg("ok")
}
