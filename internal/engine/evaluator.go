package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Kind names an evaluation strategy.
type Kind int

const (
	KindGeneric Kind = iota
	KindSingleHost
	KindMulti
)

func (k Kind) String() string {
	switch k {
	case KindMulti:
		return "multi"
	case KindSingleHost:
		return "single-host"
	default:
		return "generic"
	}
}

// Result is either a result document or an invalid-archive explanation.
type Result struct {
	Doc     map[string]any
	Invalid string
}

// Document wraps a successful result.
func Document(doc map[string]any) Result { return Result{Doc: doc} }

// InvalidResult reports an archive the engine refuses to evaluate.
func InvalidResult(msg string) Result { return Result{Invalid: msg} }

// IsInvalid reports whether r carries an explanation instead of a document.
func (r Result) IsInvalid() bool { return r.Invalid != "" }

// Evaluator runs the loaded rules over one archive.
type Evaluator interface {
	Kind() Kind
	Process(ctx context.Context) (Result, error)
}

type options struct {
	uploaderLogDir string
}

// Option tunes the evaluators built by Select.
type Option func(*options)

// WithUploaderLogDir makes single-host evaluation copy the archive's
// uploader log to <dir>/<system_id>.log. An empty dir turns it off.
func WithUploaderLogDir(dir string) Option {
	return func(o *options) { o.uploaderLogDir = dir }
}

// Select chooses the evaluator for an archive:
//
//	metadata.json with "systems"  -> multi
//	non-empty machine-id at root  -> single host
//	otherwise                     -> generic
func Select(a *Archive, md Metadata, systemID string, rules *RuleSet, opts ...Option) Evaluator {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	switch {
	case md.HasSystems():
		return &multiEvaluator{arc: a, md: md, systemID: systemID, rules: rules}
	case a.Text("machine-id") != "":
		return &hostEvaluator{arc: a, systemID: systemID, rules: rules, logDir: o.uploaderLogDir}
	default:
		return &genericEvaluator{arc: a, systemID: systemID, rules: rules}
	}
}

func optionalID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// ---- single host ----

type hostEvaluator struct {
	arc      *Archive
	systemID string
	rules    *RuleSet
	logDir   string
}

func (e *hostEvaluator) Kind() Kind { return KindSingleHost }

func (e *hostEvaluator) Process(ctx context.Context) (Result, error) {
	id := e.systemID
	if id == "" {
		id = e.arc.Text("machine-id")
	}
	reports, skips, err := e.rules.run(ctx, e.arc)
	if err != nil {
		return Result{}, err
	}
	e.saveUploaderLog(ctx, id)
	return Document(map[string]any{
		"system": map[string]any{
			"system_id": id,
			"hostname":  e.arc.Hostname(),
			"type":      "host",
		},
		"reports": reports,
		"skips":   skips,
	}), nil
}

// uploaderLogFiles are the places the insights client leaves its own log.
var uploaderLogFiles = []string{
	"uploader_log",
	"insights_commands/uploader_log",
	"var/log/insights-client/insights-client.log",
	"var/log/redhat-access-insights/redhat-access-insights.log",
}

// saveUploaderLog keeps the client's log next to other hosts' logs. Failures
// are logged only; the result does not depend on them.
func (e *hostEvaluator) saveUploaderLog(ctx context.Context, systemID string) {
	if e.logDir == "" {
		return
	}
	log := zerolog.Ctx(ctx)

	var content []byte
	for _, f := range uploaderLogFiles {
		if b, err := e.arc.Content(f); err == nil && len(b) > 0 {
			content = b
			break
		}
	}
	if content == nil {
		return
	}

	path, err := writeUploaderLog(e.logDir, systemID, content)
	if err != nil {
		log.Warn().Err(err).Str("system_id", systemID).Msg("failed to save uploader log")
		return
	}
	log.Info().Str("system_id", systemID).Str("path", path).Msg("uploader log available")
}

func writeUploaderLog(dir, systemID string, content []byte) (string, error) {
	name := systemID + ".log"
	if !filepath.IsLocal(name) || strings.ContainsAny(systemID, `/\`) {
		return "", fmt.Errorf("system id %q is not a valid file name", systemID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ---- multi system ----

type multiEvaluator struct {
	arc      *Archive
	md       Metadata
	systemID string
	rules    *RuleSet
}

func (e *multiEvaluator) Kind() Kind { return KindMulti }

func (e *multiEvaluator) Process(ctx context.Context) (Result, error) {
	systems, ok := e.md["systems"].([]any)
	if !ok || len(systems) == 0 {
		return InvalidResult("metadata.json: systems must be a non-empty list"), nil
	}

	archives := make([]any, 0, len(systems))
	for i, s := range systems {
		entry, ok := s.(map[string]any)
		if !ok {
			return InvalidResult("metadata.json: systems entry is not an object"), nil
		}
		id, _ := entry["system_id"].(string)
		if id == "" {
			return InvalidResult("metadata.json: systems entry is missing system_id"), nil
		}

		sub := e.arc
		if d, ok := e.arc.Sub(id); ok {
			sub = d
		}
		reports, skips, err := e.rules.run(ctx, sub)
		if err != nil {
			return Result{}, err
		}
		typ, _ := entry["type"].(string)
		if typ == "" {
			typ = "host"
		}
		archives = append(archives, map[string]any{
			"system": map[string]any{
				"system_id": id,
				"hostname":  sub.Hostname(),
				"type":      typ,
				"index":     i,
			},
			"reports": reports,
			"skips":   skips,
		})
	}

	reports, skips, err := e.rules.run(ctx, e.arc)
	if err != nil {
		return Result{}, err
	}

	parent := e.md.String("system_id")
	if parent == "" {
		parent = e.systemID
	}
	product := e.md.String("product")
	if product == "" {
		product = "multi"
	}
	return Document(map[string]any{
		"system": map[string]any{
			"system_id": optionalID(parent),
			"type":      product,
		},
		"reports":  reports,
		"skips":    skips,
		"archives": archives,
	}), nil
}

// ---- generic ----

type genericEvaluator struct {
	arc      *Archive
	systemID string
	rules    *RuleSet
}

func (e *genericEvaluator) Kind() Kind { return KindGeneric }

func (e *genericEvaluator) Process(ctx context.Context) (Result, error) {
	reports, skips, err := e.rules.run(ctx, e.arc)
	if err != nil {
		return Result{}, err
	}
	return Document(map[string]any{
		"system": map[string]any{
			"system_id": optionalID(e.systemID),
			"hostname":  e.arc.Hostname(),
			"type":      "sosreport",
		},
		"reports": reports,
		"skips":   skips,
	}), nil
}
