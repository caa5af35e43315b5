// Package cli implements the command-line interface for s3chunk.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/s3-chunkproc/internal/app"
	"github.com/eunmann/s3-chunkproc/internal/config"
	"github.com/eunmann/s3-chunkproc/pkg/jobinput"
	"github.com/eunmann/s3-chunkproc/pkg/logging"
)

const usage = `usage: s3chunk <command> [options]
commands:
  invoke   select, record and print the next chunk of a job
  status   print a job's progress without changing it`

// runner holds the process dependencies a command needs.
type runner struct {
	stdout     io.Writer
	loadConfig func(envFile string) (config.Config, error)
	newApp     func(ctx context.Context, cfg config.Config) (*app.App, error)
}

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	r := runner{
		stdout:     os.Stdout,
		loadConfig: config.Load,
		newApp:     app.New,
	}
	return r.run(context.Background(), args)
}

func (r runner) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "invoke":
		return r.runInvoke(ctx, args[1:])
	case "status":
		return r.runStatus(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// jobFlags are the flags shared by every command.
type jobFlags struct {
	envFile   string
	eventFile string
	event     jobinput.Event
}

func newJobFlagSet(name string) (*flag.FlagSet, *jobFlags) {
	jf := &jobFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&jf.envFile, "env-file", "", "path to a .env file (default: ./.env when present)")
	fs.StringVar(&jf.eventFile, "event", "", "JSON event file; overrides the job flags")
	fs.StringVar(&jf.event.Owner, "owner", "", "job owner")
	fs.StringVar(&jf.event.ExecutionID, "execution-id", "", "workflow execution ARN")
	fs.StringVar(&jf.event.Bucket, "bucket", "", "bucket to process")
	fs.Func("prefix", "key prefix to process (empty for the whole bucket)", func(v string) error {
		jf.event.Prefix = &v
		return nil
	})
	fs.StringVar(&jf.event.Table, "table", "", "state table name")
	return fs, jf
}

// resolveEvent returns the event from --event, or from the job flags.
func (jf *jobFlags) resolveEvent() (jobinput.Event, error) {
	if jf.eventFile == "" {
		return jf.event, nil
	}

	data, err := os.ReadFile(jf.eventFile)
	if err != nil {
		return jobinput.Event{}, fmt.Errorf("read event file: %w", err)
	}
	var ev jobinput.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return jobinput.Event{}, fmt.Errorf("parse event file %s: %w", jf.eventFile, err)
	}
	return ev, nil
}

// setup parses flags, loads config, initializes logging and builds the app.
func (r runner) setup(ctx context.Context, name string, args []string) (*app.App, jobinput.Event, error) {
	fs, jf := newJobFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return nil, jobinput.Event{}, err
	}

	ev, err := jf.resolveEvent()
	if err != nil {
		return nil, jobinput.Event{}, err
	}
	// Reject bad input before touching AWS.
	if _, err := jobinput.FromEvent(ev); err != nil {
		return nil, jobinput.Event{}, err
	}

	cfg, err := r.loadConfig(jf.envFile)
	if err != nil {
		return nil, jobinput.Event{}, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.LogDebug, cfg.LogHuman)

	a, err := r.newApp(ctx, cfg)
	if err != nil {
		return nil, jobinput.Event{}, err
	}
	return a, ev, nil
}

func (r runner) runInvoke(ctx context.Context, args []string) error {
	a, ev, err := r.setup(ctx, "invoke", args)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.Invoke(ctx, ev, "")
	if err != nil {
		return err
	}
	return r.printJSON(out)
}

func (r runner) runStatus(ctx context.Context, args []string) error {
	a, ev, err := r.setup(ctx, "status", args)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Status(ctx, ev)
	if err != nil {
		return err
	}
	return r.printJSON(st)
}

func (r runner) printJSON(v any) error {
	enc := json.NewEncoder(r.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
