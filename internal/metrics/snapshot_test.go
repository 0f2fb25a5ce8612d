package metrics

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func TestWriteSnapshot(t *testing.T) {
	c, registry := newTestCollector(CollectorConfig{Version: "v1", BatchSize: 1})
	c.RunStarted("origin-hyper", "origin")
	c.ObservePhase("load_keepalive", 15*time.Second)
	c.RunFinished("origin", true)

	dir := t.TempDir()
	write := func(name string, data []byte) error {
		return os.WriteFile(filepath.Join(dir, name), data, 0o644)
	}
	if err := WriteSnapshot(registry, "metrics.prom", write); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "metrics.prom"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		"# TYPE bench_runs_total counter",
		`bench_runs_total{result="success",role="origin"} 1`,
		"bench_batch_progress 1",
		`bench_phase_duration_seconds_count{phase="load_keepalive"} 1`,
		`bench_info{version="v1"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("snapshot missing %q", want)
		}
	}

	// The snapshot parses back as the text exposition format
	decoder := expfmt.NewDecoder(bytes.NewReader(data), expfmt.FmtText)
	names := make(map[string]bool)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("snapshot does not parse: %v", err)
		}
		names[mf.GetName()] = true
	}
	if !names["bench_runs_total"] {
		t.Error("bench_runs_total missing after parse")
	}
}

func TestWriteSnapshot_WriteError(t *testing.T) {
	_, registry := newTestCollector(CollectorConfig{})
	boom := errors.New("disk full")

	err := WriteSnapshot(registry, "metrics.prom", func(string, []byte) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("WriteSnapshot() error = %v, want wrapped %v", err, boom)
	}
}
