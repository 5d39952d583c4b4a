package gitinfo

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/canonical"
)

func TestExtenderStampsConfig(t *testing.T) {
	extend := extenderFor(Info{Commit: "abc123", Branch: "main", Dirty: false})

	cfg := featureforge.Config{"x": 1}
	out, err := extend(cfg)
	if err != nil {
		t.Fatalf("extend() error = %v", err)
	}
	stamp, ok := out[ConfigKey].(featureforge.Config)
	if !ok {
		t.Fatalf("out[%q] = %T, want Config", ConfigKey, out[ConfigKey])
	}
	if stamp["commit"] != "abc123" || stamp["branch"] != "main" || stamp["dirty"] != false {
		t.Fatalf("stamp = %v", stamp)
	}
	if _, ok := cfg[ConfigKey]; ok {
		t.Fatal("extender mutated its input")
	}
	if _, err := canonical.Key(out); err != nil {
		t.Fatalf("stamped config not canonicalizable: %v", err)
	}
}

func TestExtenderKeepsExistingStamp(t *testing.T) {
	extend := extenderFor(Info{Commit: "abc123", Branch: "main"})

	cfg := featureforge.Config{"x": 1, ConfigKey: "pinned"}
	out, err := extend(cfg)
	if err != nil {
		t.Fatalf("extend() error = %v", err)
	}
	if out[ConfigKey] != "pinned" {
		t.Fatalf("out[%q] = %v, want existing value preserved", ConfigKey, out[ConfigKey])
	}
}

func TestDescribe(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "--initial-branch=main", ".")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "a.txt")
	run("commit", "-m", "initial")

	info, err := Describe(dir)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(info.Commit) != 40 {
		t.Fatalf("Commit = %q, want a full hash", info.Commit)
	}
	if info.Branch != "main" {
		t.Fatalf("Branch = %q, want main", info.Branch)
	}
	if info.Dirty {
		t.Fatal("Dirty = true for a clean working copy")
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err = Describe(dir)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if !info.Dirty {
		t.Fatal("Dirty = false after modifying a tracked file")
	}
}
