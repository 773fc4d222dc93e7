package worker

import (
	"context"
	"fmt"

	"insights-gateway/internal/intake"
	"insights-gateway/internal/model"
	"insights-gateway/internal/stats"
	"insights-gateway/internal/tracing"
	"insights-gateway/internal/workspace"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source stores the upload's bytes inside the request workspace.
type Source func(ws *workspace.Workspace) (*intake.Upload, error)

// Processor runs one upload through the pipeline:
//
//	intake -> dispatch -> assemble -> persist -> stats
//
// The workspace is acquired first and released on every exit path, after
// persistence has read the archive.
type Processor struct {
	workspaces *workspace.Manager
	dispatcher *Dispatcher
	persister  *Persister
	stats      *stats.ProcessStats
	tracer     trace.Tracer
}

func NewProcessor(ws *workspace.Manager, d *Dispatcher, p *Persister, st *stats.ProcessStats) *Processor {
	return &Processor{
		workspaces: ws,
		dispatcher: d,
		persister:  p,
		stats:      st,
		tracer:     tracing.Tracer(),
	}
}

// Process handles one upload end to end.
func (p *Processor) Process(ctx context.Context, req model.UploadRequest, src Source) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "upload", trace.WithAttributes(
		attribute.String("system_id", req.SystemID),
		attribute.String("account", req.AccountID),
		attribute.String("user_agent", req.UserAgent),
	))
	defer span.End()
	log := zerolog.Ctx(ctx)

	ws, err := p.workspaces.Acquire()
	if err != nil {
		return nil, failed(span, err)
	}
	defer func() {
		if err := ws.Release(); err != nil {
			log.Warn().Err(err).Str("workspace", ws.Dir()).Msg("failed to release workspace")
		}
	}()

	var up *intake.Upload
	err = p.stage(ctx, "intake", func(context.Context) error {
		var err error
		up, err = src(ws)
		return err
	})
	if err != nil {
		return nil, failed(span, err)
	}
	log.Debug().Int64("size", up.Size).Msg("upload received")

	var dis *Dispatched
	err = p.stage(ctx, "dispatch", func(ctx context.Context) error {
		var err error
		dis, err = p.dispatcher.Dispatch(ctx, ws, up.Path, req.SystemID)
		return err
	})
	if err != nil {
		return nil, failed(span, err)
	}

	var resp *Response
	err = p.stage(ctx, "assemble", func(context.Context) error {
		var err error
		resp, err = Assemble(dis.Result, up.Size, req.UserAgent)
		return err
	})
	if err != nil {
		return nil, failed(span, err)
	}

	systemID := ResultSystemID(dis.Result.Doc)
	_ = p.stage(ctx, "persist", func(ctx context.Context) error {
		if !p.persister.Persist(ctx, up.Path, systemID, dis.Type, req.AccountID) {
			log.Debug().Str("system_id", systemID).Msg("persistence skipped")
		}
		return nil
	})

	p.stats.Update(req.UserAgent, resp.Upload.Size, resp.Rules)

	span.SetAttributes(
		attribute.String("archive.type", dis.Type.String()),
		attribute.String("evaluator", dis.Evaluator.String()),
		attribute.Int("reports", resp.Rules),
	)
	log.Info().
		Str("system_id", systemID).
		Str("type", dis.Type.String()).
		Str("evaluator", dis.Evaluator.String()).
		Int64("size", up.Size).
		Int("reports", resp.Rules).
		Str("upload_uuid", resp.Upload.UUID).
		Msg("upload processed")
	return resp, nil
}

func (p *Processor) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, model.AsError(err).Kind.String())
		return err
	}
	return nil
}

func failed(span trace.Span, err error) error {
	e := model.AsError(err)
	span.SetStatus(codes.Error, e.Kind.String())
	if e.Kind == model.KindUnknown {
		return fmt.Errorf("process upload: %w", err)
	}
	return err
}
