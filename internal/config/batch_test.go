package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
)

const exampleBatch = `
origins:
  - name: origin-hyper
  - name: origin-nginx
    kind: daemon
    config: /etc/bench/nginx.conf
  - name: origin-c-epoll-mp
    kind: fleet
    pattern: ^origin-c-epoll
  - name: origin-ntex
    kind: shell
  - name: origin-backend
    pair_only: true
proxies:
  - name: proxy-hyper
    origin: origin-hyper
  - name: proxy-pingora
    origin: origin-backend
`

func TestParseBatch(t *testing.T) {
	b, err := ParseBatch([]byte(exampleBatch))
	if err != nil {
		t.Fatalf("ParseBatch() error = %v", err)
	}

	if len(b.Origins) != 5 || len(b.Proxies) != 2 {
		t.Fatalf("origins=%d proxies=%d", len(b.Origins), len(b.Proxies))
	}
	if got := b.Len(); got != 6 {
		t.Errorf("Len() = %d, want 6 (pair-only origin excluded)", got)
	}

	def := b.Origins[1].Definition()
	if def.Kind != process.KindDaemon || def.ConfigFile != "/etc/bench/nginx.conf" {
		t.Errorf("nginx definition = %+v", def)
	}
	if def := b.Origins[0].Definition(); def.Kind != process.KindDirect {
		t.Errorf("default kind = %q, want direct", def.Kind)
	}
	if def := b.Origins[2].Definition(); def.Pattern != "^origin-c-epoll" {
		t.Errorf("fleet pattern = %q", def.Pattern)
	}
	if !b.UsesKind(process.KindDaemon) || b.UsesKind("vm") {
		t.Error("UsesKind() mismatch")
	}
}

func TestParseBatch_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "origins:\n  - name: a\n    knd: direct\n", "knd"},
		{"duplicate", "origins:\n  - name: a\n  - name: a\n", "duplicate"},
		{"bad kind", "origins:\n  - name: a\n    kind: docker\n", "unknown variant kind"},
		{"path name", "origins:\n  - name: ../a\n", "origins[0].name"},
		{"unknown origin", "origins:\n  - name: a\nproxies:\n  - name: p\n    origin: b\n", `unknown origin "b"`},
		{"missing origin", "origins:\n  - name: a\nproxies:\n  - name: p\n", "is required"},
		{"config on direct", "origins:\n  - name: a\n    config: x.conf\n", "only daemon"},
		{"pattern on daemon", "origins:\n  - name: a\n    kind: daemon\n    pattern: x\n", "only fleet"},
		{"empty", "origins: []\n", "no runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBatch([]byte(tt.doc))
			if err == nil {
				t.Fatal("ParseBatch() = nil error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseBatch() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestDefaultBatch(t *testing.T) {
	b := DefaultBatch()
	if err := b.Validate(); err != nil {
		t.Fatalf("DefaultBatch() invalid: %v", err)
	}

	var names []string
	for _, o := range b.Origins {
		names = append(names, o.Name)
	}
	for _, p := range b.Proxies {
		names = append(names, p.Name)
		if p.Origin != "origin-hyper" {
			t.Errorf("%s paired with %s, want origin-hyper", p.Name, p.Origin)
		}
	}
	want := "origin-actix,origin-hyper,origin-pingora,origin-nginx,proxy-actix,proxy-hyper,proxy-pingora"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
	if o, _ := b.Origin("origin-nginx"); o.Definition().Kind != process.KindDaemon {
		t.Error("origin-nginx must be a daemon variant")
	}
}

func TestBatch_Filter(t *testing.T) {
	b := DefaultBatch()

	t.Run("proxy keeps its origin pair-only", func(t *testing.T) {
		f, err := b.Filter([]string{"proxy-hyper"})
		if err != nil {
			t.Fatal(err)
		}
		if len(f.Proxies) != 1 || len(f.Origins) != 1 {
			t.Fatalf("filtered = %+v", f)
		}
		if !f.Origins[0].PairOnly || f.Origins[0].Name != "origin-hyper" {
			t.Errorf("origin = %+v, want pair-only origin-hyper", f.Origins[0])
		}
		if f.Len() != 1 {
			t.Errorf("Len() = %d, want 1", f.Len())
		}
	})

	t.Run("origin and its proxy", func(t *testing.T) {
		f, err := b.Filter([]string{"proxy-actix", "origin-hyper"})
		if err != nil {
			t.Fatal(err)
		}
		if f.Origins[0].PairOnly || f.Len() != 2 {
			t.Errorf("filtered = %+v", f)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := b.Filter([]string{"origin-bogus"}); err == nil {
			t.Error("Filter() accepted unknown name")
		}
	})

	t.Run("only pair-only origin", func(t *testing.T) {
		pb := &Batch{
			Origins: []VariantSpec{{Name: "origin-hello"}, {Name: "origin-backend", PairOnly: true}},
			Proxies: []ProxySpec{{Name: "proxy-hello", Origin: "origin-backend"}},
		}
		if _, err := pb.Filter([]string{"origin-backend"}); err == nil {
			t.Error("Filter() accepted a selection with no runs")
		}
		f, err := pb.Filter([]string{"origin-backend", "proxy-hello"})
		if err != nil {
			t.Fatal(err)
		}
		if f.Len() != 1 {
			t.Errorf("Len() = %d, want 1", f.Len())
		}
	})

	t.Run("empty keeps all", func(t *testing.T) {
		f, _ := b.Filter(nil)
		if f.Len() != b.Len() {
			t.Error("Filter(nil) dropped runs")
		}
	})
}

func TestLoadBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(exampleBatch), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := LoadBatch(path)
	if err != nil {
		t.Fatalf("LoadBatch() error = %v", err)
	}
	if b.Len() != 6 {
		t.Errorf("Len() = %d", b.Len())
	}

	if _, err := LoadBatch(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadBatch(missing) = nil error")
	}
}
