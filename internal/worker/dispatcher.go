package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"insights-gateway/internal/archive"
	"insights-gateway/internal/config"
	"insights-gateway/internal/engine"
	"insights-gateway/internal/model"
	"insights-gateway/internal/workspace"

	"github.com/rs/zerolog"
)

// Dispatched is the outcome of evaluating one archive.
type Dispatched struct {
	Type      archive.Type
	MIME      string
	Evaluator engine.Kind
	Result    engine.Result
}

// Dispatcher classifies an uploaded archive, extracts it into the
// workspace and runs the matching evaluator.
type Dispatcher struct {
	rules          *engine.RuleSet
	limits         archive.Limits
	extractTimeout time.Duration
	evalTimeout    time.Duration
	uploaderLogDir string
}

func NewDispatcher(cfg config.Config, rules *engine.RuleSet) *Dispatcher {
	return &Dispatcher{
		rules: rules,
		limits: archive.Limits{
			MaxBytes:   cfg.MaxExtractedBytes,
			MaxEntries: cfg.MaxArchiveEntries,
		},
		extractTimeout: cfg.ExtractTimeout,
		evalTimeout:    cfg.EvalTimeout,
		uploaderLogDir: cfg.UploaderLogDir,
	}
}

// Dispatch runs sniff -> extract -> select -> evaluate for the file at path.
// An engine refusal comes back as Result.Invalid, not as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, ws *workspace.Workspace, path, systemID string) (*Dispatched, error) {
	log := zerolog.Ctx(ctx)

	typ, mime, err := archive.Sniff(path)
	if err != nil {
		return nil, err
	}

	dest, err := ws.Mkdir("extract")
	if err != nil {
		return nil, err
	}

	ex, err := d.extract(ctx, path, typ, dest)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("type", typ.String()).
		Int("files", ex.Files).
		Int64("bytes", ex.Bytes).
		Msg("archive extracted")

	arc := engine.NewArchive(ex.Root)
	md, err := engine.ReadMetadata(arc)
	if err != nil {
		return nil, model.WrapError(model.KindInvalidArchive, err, "Invalid archive: %v", err)
	}

	ev := engine.Select(arc, md, systemID, d.rules, engine.WithUploaderLogDir(d.uploaderLogDir))
	res, err := d.evaluate(ctx, ev)
	if err != nil {
		return nil, err
	}
	return &Dispatched{Type: typ, MIME: mime, Evaluator: ev.Kind(), Result: res}, nil
}

func (d *Dispatcher) extract(ctx context.Context, path string, typ archive.Type, dest string) (*archive.Extracted, error) {
	if d.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.extractTimeout)
		defer cancel()
	}
	return archive.Extract(ctx, path, typ, dest, d.limits)
}

// evaluate runs ev.Process. A panic or unexpected error inside the engine is
// logged with its stack and surfaces as UnhandledEngine.
func (d *Dispatcher) evaluate(ctx context.Context, ev engine.Evaluator) (res engine.Result, err error) {
	log := zerolog.Ctx(ctx)

	if d.evalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.evalTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("evaluator", ev.Kind().String()).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("unhandled engine exception")
			err = model.NewError(model.KindUnhandledEngine, "Unhandled engine exception")
		}
	}()

	start := time.Now()
	res, err = ev.Process(ctx)
	switch {
	case err == nil:
		log.Debug().
			Str("evaluator", ev.Kind().String()).
			Dur("took", time.Since(start)).
			Bool("invalid", res.IsInvalid()).
			Msg("archive evaluated")
		return res, nil
	case errors.Is(err, context.DeadlineExceeded):
		return engine.Result{}, model.WrapError(model.KindEvaluationTimeout, err, "Archive evaluation timed out")
	default:
		log.Error().Err(err).
			Str("evaluator", ev.Kind().String()).
			Bytes("stack", debug.Stack()).
			Msg("unhandled engine exception")
		return engine.Result{}, model.WrapError(model.KindUnhandledEngine, err, "Unhandled engine exception")
	}
}
