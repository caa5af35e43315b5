package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eunmann/s3-chunkproc/internal/app"
	"github.com/eunmann/s3-chunkproc/internal/config"
	"github.com/eunmann/s3-chunkproc/pkg/jobinput"
	"github.com/eunmann/s3-chunkproc/pkg/lister"
	"github.com/eunmann/s3-chunkproc/pkg/statestore/sqlitestore"
)

const execARN = "arn:aws:states:us-east-1:123456789012:execution:pipeline:run-42"

// newTestRunner wires a memory lister and a temp-dir SQLite store.
func newTestRunner(t *testing.T) (runner, *bytes.Buffer) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")

	l := lister.NewMemory()
	l.Put("data", "in/a", "in/b", "in/c", "in/sub/")

	var out bytes.Buffer
	r := runner{
		stdout: &out,
		loadConfig: func(string) (config.Config, error) {
			return config.Config{ChunkSize: 2, StateBackend: config.BackendSQLite, StateSQLitePath: dbPath, ListingSource: config.SourceS3}, nil
		},
		newApp: func(_ context.Context, cfg config.Config) (*app.App, error) {
			s, err := sqlitestore.Open(cfg.StateSQLitePath)
			if err != nil {
				return nil, err
			}
			t.Cleanup(func() { s.Close() })
			return app.NewWith(l, s, cfg.ChunkSize)
		},
	}
	return r, &out
}

func jobArgs(cmd string) []string {
	return []string{cmd, "--owner", "acme", "--execution-id", execARN, "--bucket", "data", "--prefix", "in/", "--table", "activity"}
}

func TestRunNoArgs(t *testing.T) {
	err := Run(nil)
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"unknown"})
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestInvokeMissingFields(t *testing.T) {
	r, _ := newTestRunner(t)
	err := r.run(context.Background(), []string{"invoke", "--owner", "acme"})
	if !errors.Is(err, jobinput.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got: %v", err)
	}
	for _, f := range []string{"sfnExecutionId", "bucketName", "keyPrefix", "activityLogsTable"} {
		if !strings.Contains(err.Error(), f) {
			t.Errorf("error %q does not name %s", err, f)
		}
	}
}

func TestInvokeEmptyPrefix(t *testing.T) {
	r, out := newTestRunner(t)
	args := []string{"invoke", "--owner", "acme", "--execution-id", execARN, "--bucket", "data", "--prefix", "", "--table", "activity"}

	if err := r.run(context.Background(), args); err != nil {
		t.Fatalf("invoke with empty prefix: %v", err)
	}
	var items []string
	if err := json.Unmarshal(out.Bytes(), &items); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(items) != 2 || items[0] != "data/in/a" {
		t.Errorf("first chunk = %v", items)
	}
}

func TestInvokeBadFlag(t *testing.T) {
	r, _ := newTestRunner(t)
	if err := r.run(context.Background(), []string{"invoke", "--nope"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestInvokeDrainsJob(t *testing.T) {
	r, out := newTestRunner(t)
	ctx := context.Background()

	if err := r.run(ctx, jobArgs("invoke")); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var items []string
	if err := json.Unmarshal(out.Bytes(), &items); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(items) != 2 || items[0] != "data/in/a" || items[1] != "data/in/b" {
		t.Errorf("first chunk = %v", items)
	}

	out.Reset()
	if err := r.run(ctx, jobArgs("invoke")); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	items = nil
	if err := json.Unmarshal(out.Bytes(), &items); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(items) != 1 || items[0] != "data/in/c" {
		t.Errorf("second chunk = %v", items)
	}

	out.Reset()
	if err := r.run(ctx, jobArgs("invoke")); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var sentinel string
	if err := json.Unmarshal(out.Bytes(), &sentinel); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if sentinel != "Handled all reports" {
		t.Errorf("final output = %q", sentinel)
	}
}

func TestInvokeEventFile(t *testing.T) {
	r, out := newTestRunner(t)

	prefix := "in/"
	ev := jobinput.Event{Owner: "acme", ExecutionID: execARN, Bucket: "data", Prefix: &prefix, Table: "activity"}
	data, _ := json.Marshal(ev)
	path := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := r.run(context.Background(), []string{"invoke", "--event", path}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(out.String(), "data/in/a") {
		t.Errorf("output = %q, want first item", out.String())
	}
}

func TestInvokeEventFileMissing(t *testing.T) {
	r, _ := newTestRunner(t)
	err := r.run(context.Background(), []string{"invoke", "--event", filepath.Join(t.TempDir(), "none.json")})
	if err == nil || !strings.Contains(err.Error(), "read event file") {
		t.Errorf("expected read error, got: %v", err)
	}
}

func TestInvokeConfigError(t *testing.T) {
	r, _ := newTestRunner(t)
	r.loadConfig = func(string) (config.Config, error) {
		return config.Config{}, config.ErrInvalidChunkSize
	}
	err := r.run(context.Background(), jobArgs("invoke"))
	if !errors.Is(err, config.ErrInvalidChunkSize) {
		t.Errorf("expected ErrInvalidChunkSize, got: %v", err)
	}
}

func TestStatus(t *testing.T) {
	r, out := newTestRunner(t)
	ctx := context.Background()

	if err := r.run(ctx, jobArgs("invoke")); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	out.Reset()

	if err := r.run(ctx, jobArgs("status")); err != nil {
		t.Fatalf("status: %v", err)
	}
	var st struct {
		PartitionKey string `json:"partitionKey"`
		Total        int    `json:"total"`
		Handled      int    `json:"handled"`
		Remaining    int    `json:"remaining"`
		CountCached  bool   `json:"countCached"`
	}
	if err := json.Unmarshal(out.Bytes(), &st); err != nil {
		t.Fatalf("decode status %q: %v", out.String(), err)
	}
	if st.PartitionKey != "OWNER#acme#EXECUTION_ID#run-42" {
		t.Errorf("partitionKey = %q", st.PartitionKey)
	}
	if st.Total != 3 || st.Handled != 2 || st.Remaining != 1 || !st.CountCached {
		t.Errorf("status = %+v", st)
	}
}
