// Package core is the rule package shipped with the gateway. Importing it
// registers the "core" package with the engine.
package core

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"insights-gateway/internal/engine"
)

const (
	Name    = "core"
	Version = "1.0.0"
)

// Commit is set at build time.
var Commit = "unknown"

func init() {
	engine.RegisterPackage(Package())
}

// Package returns the core rule package.
func Package() engine.Package {
	return engine.Package{
		Name:    Name,
		Version: Version,
		Commit:  Commit,
		Rules: []engine.Rule{
			engine.RuleFunc{ID: "selinux_disabled", Fn: selinuxDisabled},
			engine.RuleFunc{ID: "eol_release", Fn: eolRelease},
			engine.RuleFunc{ID: "root_fs_full", Fn: rootFSFull},
		},
	}
}

func selinuxDisabled(_ context.Context, a *engine.Archive) (*engine.Hit, error) {
	b, err := a.Content("etc/selinux/config")
	if err != nil || b == nil {
		return nil, err
	}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(k) == "SELINUX" && strings.EqualFold(strings.TrimSpace(v), "disabled") {
			return &engine.Hit{Key: "SELINUX_DISABLED", Details: map[string]any{"file": "etc/selinux/config"}}, nil
		}
	}
	return nil, sc.Err()
}

var releaseRe = regexp.MustCompile(`release (\d+)(?:\.(\d+))?`)

// Majors past end of maintenance.
var eolMajors = map[string]bool{"4": true, "5": true, "6": true}

func eolRelease(_ context.Context, a *engine.Archive) (*engine.Hit, error) {
	rel := a.Text("etc/redhat-release")
	if rel == "" {
		return nil, nil
	}
	m := releaseRe.FindStringSubmatch(rel)
	if m == nil || !eolMajors[m[1]] {
		return nil, nil
	}
	return &engine.Hit{Key: "RELEASE_EOL", Details: map[string]any{"release": rel, "major": m[1]}}, nil
}

// rootFSFull reads `df -P` style output and flags "/" at 95% or more.
func rootFSFull(_ context.Context, a *engine.Archive) (*engine.Hit, error) {
	out := a.Text("insights_commands/df_-alP")
	if out == "" {
		return nil, nil
	}
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) < 6 || f[5] != "/" {
			continue
		}
		pct, err := strconv.Atoi(strings.TrimSuffix(f[4], "%"))
		if err != nil {
			return nil, fmt.Errorf("df: bad use%% column %q", f[4])
		}
		if pct >= 95 {
			return &engine.Hit{Key: "ROOT_FS_FULL", Details: map[string]any{"use": f[4], "device": f[0]}}, nil
		}
	}
	return nil, nil
}
