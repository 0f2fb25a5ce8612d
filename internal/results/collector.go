// Package results persists benchmark artifacts under a per-variant directory.
//
// Artifacts are verbatim bytes: tool output and captured process stdout are
// never parsed. Each write replaces the previous file atomically, so a rerun
// overwrites and a reader never sees a half-written artifact.
package results

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Artifact file names.
const (
	ArtifactProbe           = "curl.txt"
	ArtifactLoad            = "oha.json"
	ArtifactLoadNoKeepAlive = "oha-no-keepalive.json"
	ArtifactLoadKeepAlive   = "oha-keepalive.json"
	ArtifactServer          = "server.txt"
	ArtifactProxy           = "proxy.txt"
	ArtifactOrigin          = "origin.txt"

	// SnapshotFile is the metrics snapshot written at the results root.
	SnapshotFile = "metrics.prom"
)

// KnownArtifacts lists every artifact a run can produce.
var KnownArtifacts = []string{
	ArtifactProbe,
	ArtifactLoad,
	ArtifactLoadNoKeepAlive,
	ArtifactLoadKeepAlive,
	ArtifactServer,
	ArtifactProxy,
	ArtifactOrigin,
}

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// WriteFunc is called after every successful artifact write.
type WriteFunc func(variant, artifact string, bytes int)

// CollectorConfig holds configuration for a Collector.
type CollectorConfig struct {
	// Root is the results directory (default "results").
	Root    string
	Logger  *slog.Logger
	OnWrite WriteFunc
}

// Collector creates run directories under a results root.
type Collector struct {
	root    string
	logger  *slog.Logger
	onWrite WriteFunc
}

// NewCollector creates a Collector.
func NewCollector(cfg CollectorConfig) *Collector {
	root := cfg.Root
	if root == "" {
		root = "results"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		root:    root,
		logger:  logger,
		onWrite: cfg.OnWrite,
	}
}

// Root returns the results root directory.
func (c *Collector) Root() string {
	return c.root
}

// Dir returns the directory for a variant. It is derived from the name
// alone, so every run of the same variant lands in the same place.
func (c *Collector) Dir(variant string) string {
	return filepath.Join(c.root, variant)
}

// Prepare creates or reuses the directory for variant and removes artifacts
// a previous run left behind, so the directory ends up holding exactly what
// this run writes. Unknown files are left alone.
func (c *Collector) Prepare(variant string) (*RunDir, error) {
	if err := validateComponent(variant); err != nil {
		return nil, fmt.Errorf("results dir: %w", err)
	}

	dir := c.Dir(variant)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}

	var errs []error
	for _, name := range KnownArtifacts {
		err := os.Remove(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("clear stale artifacts: %w", err)
	}

	c.logger.Debug("results_dir_ready", "variant", variant, "dir", dir)

	return &RunDir{collector: c, variant: variant, path: dir}, nil
}

// Artifacts lists the known artifacts present in variant's directory.
func (c *Collector) Artifacts(variant string) ([]string, error) {
	entries, err := os.ReadDir(c.Dir(variant))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && slices.Contains(KnownArtifacts, e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// WriteRoot writes a file directly under the results root.
func (c *Collector) WriteRoot(name string, data []byte) error {
	if err := validateComponent(name); err != nil {
		return err
	}
	if err := os.MkdirAll(c.root, dirPerm); err != nil {
		return fmt.Errorf("create results root: %w", err)
	}
	return atomicWriteFile(filepath.Join(c.root, name), data, filePerm)
}

// RunDir is one run's output directory.
type RunDir struct {
	collector *Collector
	variant   string
	path      string

	mu      sync.Mutex
	written []string
}

// Path returns the directory path.
func (d *RunDir) Path() string {
	return d.path
}

// Write stores data as artifact, replacing any previous content.
func (d *RunDir) Write(artifact string, data []byte) error {
	if err := validateComponent(artifact); err != nil {
		return err
	}

	path := filepath.Join(d.path, artifact)
	if err := atomicWriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	d.mu.Lock()
	if !slices.Contains(d.written, artifact) {
		d.written = append(d.written, artifact)
	}
	d.mu.Unlock()

	d.collector.logger.Debug("artifact_written",
		"variant", d.variant,
		"artifact", artifact,
		"bytes", len(data),
	)
	if d.collector.onWrite != nil {
		d.collector.onWrite(d.variant, artifact, len(data))
	}
	return nil
}

// Written returns the artifacts written so far, in write order.
func (d *RunDir) Written() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.written)
}

func validateComponent(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}

// atomicWriteFile writes data to a temp file in the same directory and
// renames it over path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing to disk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
