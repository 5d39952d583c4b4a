// Package gitinfo captures the state of a git working copy so experiment
// configurations can record the exact code revision that produced their
// results.
package gitinfo

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/machinalis/featureforge"
)

// ConfigKey is the configuration key under which Extender records the
// repository state.
const ConfigKey = "git_info"

// Info describes a git working copy at a point in time.
type Info struct {
	Commit string
	Branch string
	Dirty  bool
}

// Config returns the Info as configuration values. Everything is a plain
// string or bool so the result always canonicalizes.
func (i Info) Config() featureforge.Config {
	return featureforge.Config{
		"commit": i.Commit,
		"branch": i.Branch,
		"dirty":  i.Dirty,
	}
}

// Describe inspects the git repository at repoPath.
func Describe(repoPath string) (Info, error) {
	commit, err := gitOutput(repoPath, "rev-parse", "HEAD")
	if err != nil {
		return Info{}, fmt.Errorf("gitinfo: resolve HEAD: %w", err)
	}
	branch, err := gitOutput(repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return Info{}, fmt.Errorf("gitinfo: resolve branch: %w", err)
	}
	status, err := gitOutput(repoPath, "status", "--porcelain")
	if err != nil {
		return Info{}, fmt.Errorf("gitinfo: working copy status: %w", err)
	}

	return Info{
		Commit: commit,
		Branch: branch,
		Dirty:  status != "",
	}, nil
}

func gitOutput(repoPath string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Extender returns a configuration extender that stamps each experiment
// with the repository state under ConfigKey. The repository is inspected
// once, when the extender is built, so every item in a run carries the
// same revision and reruns against the same commit produce the same
// canonical keys. Configurations that already carry the key are left
// untouched.
func Extender(repoPath string) (featureforge.Extender, error) {
	info, err := Describe(repoPath)
	if err != nil {
		return nil, err
	}
	return extenderFor(info), nil
}

func extenderFor(info Info) featureforge.Extender {
	stamp := info.Config()
	return func(cfg featureforge.Config) (featureforge.Config, error) {
		if _, ok := cfg[ConfigKey]; ok {
			return cfg, nil
		}
		out := cfg.Clone()
		out[ConfigKey] = stamp.Clone()
		return out, nil
	}
}
