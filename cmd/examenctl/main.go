// Package main is the operator CLI for the exam service. It authors exams,
// registers applicants, assigns evaluations, drives attempt workflows and
// records reviews against the configured store and Temporal namespace.
//
// Usage:
//
//	examenctl [-config file] <group> <command> [flags]
//
// Run examenctl without arguments for the command list.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/ahrav/go-examen/internal/assessment"
	"github.com/ahrav/go-examen/internal/configuration"
	"github.com/ahrav/go-examen/internal/worker"
)

var errUsage = errors.New("usage")

// app carries what every command needs. The Temporal client is dialed on
// first use so that authoring commands work without a Temporal server.
type app struct {
	cfg        *configuration.Config
	logger     *slog.Logger
	out        io.Writer
	svc        *assessment.Service
	applicants worker.Registrar
	dial       func() (client.Client, error)
	temporal   client.Client
}

func (a *app) client() (client.Client, error) {
	if a.temporal != nil {
		return a.temporal, nil
	}
	c, err := a.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", a.cfg.Temporal.HostPort, err)
	}
	a.temporal = c
	return c, nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"exam create":    {"create an exam from a JSON file", examCreate},
	"exam show":      {"print an exam", examShow},
	"exam append":    {"attach bank questions to an exam", examAppend},
	"exam reorder":   {"move questions to the front of an exam", examReorder},
	"exam remove":    {"detach a question from an exam", examRemove},
	"bank add":       {"add questions from a JSON file to the bank", bankAdd},
	"applicant add":  {"register an applicant", applicantAdd},
	"assign":         {"assign exams to an applicant", assign},
	"answer show":    {"print an answer by id or applicant", answerShow},
	"attempt start":  {"start the attempt workflow for an answer", attemptStart},
	"attempt submit": {"submit a response to a running attempt", attemptSubmit},
	"attempt finish": {"finish a running attempt", attemptFinish},
	"attempt status": {"query a running attempt", attemptStatus},
	"review pending": {"list finished answers awaiting review", reviewPending},
	"review begin":   {"put a finished answer under review", reviewBegin},
	"review observe": {"record an observation on one exam", reviewObserve},
	"review final":   {"finalize the review", reviewFinalize},
}

// lookup resolves the longest command name matching the leading arguments.
func lookup(args []string) (command, []string, bool) {
	for n := 2; n >= 1; n-- {
		if len(args) < n {
			continue
		}
		if cmd, ok := commands[strings.Join(args[:n], " ")]; ok {
			return cmd, args[n:], true
		}
	}
	return command{}, nil, false
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: examenctl [-config file] <command> [flags]")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].summary)
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("EXAMEN_CONFIG"), "Path to a YAML configuration file")
	flag.Usage = func() { usage(flag.CommandLine.Output()) }
	flag.Parse()

	if err := run(context.Background(), *configPath, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "examenctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, args []string) error {
	cmd, rest, ok := lookup(args)
	if !ok {
		return errUsage
	}

	cfg, err := configuration.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Store.Backend == "memory" {
		return fmt.Errorf("%w: examenctl needs a shared store; set store.backend to redis", configuration.ErrInvalidConfig)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	backend, err := worker.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	sink, err := backend.EventSink(cfg.Events, logger)
	if err != nil {
		return err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		out:    os.Stdout,
		svc: assessment.NewService(backend.Store, backend.Store, backend.Store,
			assessment.WithEventSink(sink),
			assessment.WithLogger(logger),
		),
		applicants: backend.Applicants,
		dial: func() (client.Client, error) {
			return client.Dial(client.Options{
				HostPort:  cfg.Temporal.HostPort,
				Namespace: cfg.Temporal.Namespace,
				Logger:    tlog.NewStructuredLogger(logger),
			})
		},
	}
	defer func() {
		if a.temporal != nil {
			a.temporal.Close()
		}
	}()

	return cmd.run(ctx, a, rest)
}
