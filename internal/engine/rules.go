package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Hit is what a rule returns when it matches.
type Hit struct {
	Key     string
	Details map[string]any
}

// Rule inspects an archive. A nil Hit with a nil error means "no match".
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, a *Archive) (*Hit, error)
}

// RuleFunc adapts a function into a Rule.
type RuleFunc struct {
	ID string
	Fn func(ctx context.Context, a *Archive) (*Hit, error)
}

func (r RuleFunc) Name() string { return r.ID }

func (r RuleFunc) Evaluate(ctx context.Context, a *Archive) (*Hit, error) {
	return r.Fn(ctx, a)
}

// Package is a named, versioned set of rules.
type Package struct {
	Name    string
	Version string
	Commit  string
	Rules   []Rule
}

// ============================================================
// Package registry
// ============================================================

var (
	registryMu sync.RWMutex
	registry   = map[string]Package{}
)

// RegisterPackage makes a rule package loadable by name. Rule packages call
// it from init; registering the same name twice replaces the earlier entry.
func RegisterPackage(p Package) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name] = p
}

// ListPackages returns the registered package names, sorted.
func ListPackages() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RuleSet is the ordered set of packages loaded at startup.
type RuleSet struct {
	packages []Package
}

// NewRuleSet builds a rule set directly, bypassing the registry.
func NewRuleSet(pkgs ...Package) *RuleSet {
	return &RuleSet{packages: pkgs}
}

// LoadPackages resolves names against the registry in order. Unknown names
// are skipped and reported in the joined error; the returned set always
// holds every package that did resolve.
func LoadPackages(names []string) (*RuleSet, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	rs := &RuleSet{}
	seen := map[string]bool{}
	var errs []error
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		p, ok := registry[n]
		if !ok {
			errs = append(errs, fmt.Errorf("rule package %q is not registered", n))
			continue
		}
		rs.packages = append(rs.packages, p)
	}
	return rs, errors.Join(errs...)
}

// Packages returns the loaded packages in load order.
func (rs *RuleSet) Packages() []Package {
	if rs == nil {
		return nil
	}
	return rs.packages
}

// Len is the total number of rules across packages.
func (rs *RuleSet) Len() int {
	n := 0
	for _, p := range rs.Packages() {
		n += len(p.Rules)
	}
	return n
}

// Versions maps package name to its version and commit.
func (rs *RuleSet) Versions() map[string]any {
	out := make(map[string]any, len(rs.Packages()))
	for _, p := range rs.Packages() {
		out[p.Name] = map[string]any{"version": p.Version, "commit": p.Commit}
	}
	return out
}

// run evaluates every rule against a. A rule error becomes a skip entry;
// panics propagate to the caller.
func (rs *RuleSet) run(ctx context.Context, a *Archive) (reports, skips []any, err error) {
	reports = []any{}
	skips = []any{}
	for _, p := range rs.Packages() {
		for _, r := range p.Rules {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			id := p.Name + "|" + r.Name()
			hit, rerr := r.Evaluate(ctx, a)
			if rerr != nil {
				skips = append(skips, map[string]any{
					"rule_id": id,
					"reason":  rerr.Error(),
				})
				continue
			}
			if hit == nil {
				continue
			}
			details := hit.Details
			if details == nil {
				details = map[string]any{}
			}
			reports = append(reports, map[string]any{
				"rule_id":   id,
				"component": p.Name + "." + r.Name(),
				"type":      "rule",
				"key":       hit.Key,
				"details":   details,
			})
		}
	}
	return reports, skips, nil
}
