package backlog_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/machinalis/featureforge/backlog"
	"github.com/machinalis/featureforge/canonical"
)

func TestLoadJSONPreservesNumberKinds(t *testing.T) {
	in := `[{"x": 1}, {"x": 1.0}, {"name": "trial", "nested": {"k": [1, 2]}}]`
	configs, err := backlog.LoadJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if len(configs) != 3 {
		t.Fatalf("got %d configs, want 3", len(configs))
	}

	if _, ok := configs[0]["x"].(json.Number); !ok {
		t.Fatalf("x decoded as %T, want json.Number", configs[0]["x"])
	}

	// 1 and 1.0 must canonicalize to different experiments.
	k1, err := canonical.Key(configs[0])
	if err != nil {
		t.Fatal(err)
	}
	k2, err := canonical.Key(configs[1])
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k2 {
		t.Fatal("integer and float configurations collided")
	}
}

func TestLoadJSONRejectsMalformed(t *testing.T) {
	cases := []string{
		`{"x": 1}`,            // object, not array
		`[{"x": 1}`,           // truncated
		`[{"x": 1}] [{"y"}] `, // trailing data
	}
	for _, in := range cases {
		if _, err := backlog.LoadJSON(strings.NewReader(in)); err == nil {
			t.Errorf("LoadJSON(%q) error = nil, want failure", in)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	in := `
- x: 1
  name: first
- x: 2
  nested:
    depth: 3
`
	configs, err := backlog.LoadYAML(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadYAML() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("got %d configs, want 2", len(configs))
	}
	if configs[0]["name"] != "first" {
		t.Fatalf("configs[0] = %v", configs[0])
	}
	if _, err := canonical.Key(configs[1]); err != nil {
		t.Fatalf("yaml config not canonicalizable: %v", err)
	}
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "backlog.json")
	if err := os.WriteFile(jsonPath, []byte(`[{"x": 1}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	yamlPath := filepath.Join(dir, "backlog.yml")
	if err := os.WriteFile(yamlPath, []byte("- x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{jsonPath, yamlPath} {
		configs, err := backlog.LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s) error = %v", path, err)
		}
		if len(configs) != 1 {
			t.Fatalf("LoadFile(%s) = %d configs, want 1", path, len(configs))
		}
	}

	txtPath := filepath.Join(dir, "backlog.txt")
	if err := os.WriteFile(txtPath, []byte(`[{"x": 1}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := backlog.LoadFile(txtPath); err == nil {
		t.Fatal("LoadFile(.txt) error = nil, want unsupported extension")
	}
	if _, err := backlog.LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("LoadFile(missing) error = nil, want open failure")
	}
}
