// Package pipeline runs the registration of one subject: prepare the
// workspace, register the T1 to MNI space affinely and nonlinearly, invert
// the warp, carry the template and the Hammers atlas into subject space,
// verify the atlas labels and present the results.
//
// Steps run strictly in order; each consumes files written by the previous
// one. The first failure aborts the run and leaves already written files in
// place.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"atlasreg/internal/models"
	"atlasreg/pkg/atlas"
	"atlasreg/pkg/config"
	"atlasreg/pkg/fsl"
	"atlasreg/pkg/labels"
	"atlasreg/pkg/naming"
	"atlasreg/pkg/runner"
	"atlasreg/pkg/tracing"
	"atlasreg/pkg/visualization"
	"atlasreg/pkg/workspace"
)

// Step names, in execution order
const (
	StepPrepare          = "prepare"
	StepAffine           = "affine"
	StepNonlinear        = "nonlinear"
	StepInvert           = "invert"
	StepTransferTemplate = "transfer-template"
	StepTransferAtlas    = "transfer-atlas"
	StepVerifyLabels     = "verify-labels"
	StepPresent          = "present"
)

// Params holds the inputs of one run.
type Params struct {
	// T1 is the subject volume to register
	T1 string

	// OutputDir receives every artifact of the run
	OutputDir string

	Config *config.Config

	// Assets are the resolved bundled volumes. When zero they are resolved
	// from Config.Assets during the prepare step.
	Assets atlas.Assets

	// RunID identifies the run in logs, traces and the manifest; a UUID is
	// generated when empty.
	RunID string

	// Interactive allows launching the viewer. Batch runs leave it unset.
	Interactive bool
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Runner runner.Runner
	Log    logrus.FieldLogger
	// Tracer defaults to a no-op tracer
	Tracer trace.Tracer
}

// Result collects every artifact of a run.
type Result struct {
	RunID     string
	Workspace *workspace.Workspace

	Affine      models.AffineMatrix
	Warp        models.Warp
	InverseWarp models.Warp

	TemplateInSubject models.Volume
	LabelsInSubject   models.Volume

	// Labels is nil when label verification is disabled
	Labels *labels.Report

	Timings      []visualization.StepTiming
	ManifestPath string

	Started  time.Time
	Finished time.Time
}

// StepError tags a failure with the step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline registers one subject.
type Pipeline struct {
	params   Params
	cfg      *config.Config
	toolkit  *fsl.Toolkit
	preparer *workspace.Preparer
	viewer   *visualization.Viewer
	log      logrus.FieldLogger
	tracer   trace.Tracer

	// verify reads both atlases from disk; replaced in tests
	verify func(source, warped string) (labels.Report, error)
}

// New creates a Pipeline for params.
func New(params Params, deps Deps) *Pipeline {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if params.RunID == "" {
		params.RunID = uuid.NewString()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracing.TracerName)
	}
	var base logrus.FieldLogger = logrus.StandardLogger()
	if deps.Log != nil {
		base = deps.Log
	}
	log := base.WithFields(logrus.Fields{
		"run_id":  params.RunID,
		"subject": naming.Base(params.T1),
	})

	return &Pipeline{
		params:   params,
		cfg:      cfg,
		toolkit:  fsl.New(deps.Runner, cfg.Tools, log),
		preparer: workspace.NewPreparer(deps.Runner, cfg.Tools.Convert, log),
		viewer:   visualization.NewViewer(deps.Runner, cfg.Tools.Viewer, log),
		log:      log,
		tracer:   tracer,
		verify:   labels.Verify,
	}
}

// RunID returns the identifier of this run.
func (p *Pipeline) RunID() string {
	return p.params.RunID
}

type step struct {
	name string
	run  func(ctx context.Context, res *Result) error
	// skip reports whether the step is disabled by configuration
	skip func() bool
}

func (p *Pipeline) steps() []step {
	return []step{
		{name: StepPrepare, run: p.prepare},
		{name: StepAffine, run: p.affine},
		{name: StepNonlinear, run: p.nonlinear},
		{name: StepInvert, run: p.invert},
		{name: StepTransferTemplate, run: p.transferTemplate},
		{name: StepTransferAtlas, run: p.transferAtlas},
		{name: StepVerifyLabels, run: p.verifyLabels, skip: func() bool { return !p.cfg.Output.VerifyLabels }},
		{name: StepPresent, run: p.present},
	}
}

// Process runs every step in order and stops at the first failure. The
// returned Result holds whatever was produced up to that point.
func (p *Pipeline) Process(ctx context.Context) (*Result, error) {
	res := &Result{RunID: p.params.RunID, Started: time.Now()}

	ctx, span := p.tracer.Start(ctx, "pipeline", trace.WithAttributes(
		attribute.String(tracing.AttrRunID, p.params.RunID),
		attribute.String(tracing.AttrSubject, naming.Base(p.params.T1)),
		attribute.String(tracing.AttrInput, p.params.T1),
	))
	defer span.End()

	p.log.WithField("path", p.params.T1).Info("starting registration")

	for _, s := range p.steps() {
		if s.skip != nil && s.skip() {
			p.log.WithField("step", s.name).Debug("step disabled")
			continue
		}
		if err := p.runStep(ctx, res, s); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
	}

	res.Finished = time.Now()
	p.log.WithField("duration", res.Finished.Sub(res.Started).Round(time.Second)).
		Info("MNI<>T1 alignment complete")
	return res, nil
}

func (p *Pipeline) runStep(ctx context.Context, res *Result, s step) error {
	if err := ctx.Err(); err != nil {
		return &StepError{Step: s.name, Err: err}
	}

	ctx, span := p.tracer.Start(ctx, s.name, trace.WithAttributes(
		attribute.String(tracing.AttrRunID, p.params.RunID),
		attribute.String(tracing.AttrStep, s.name),
	))
	defer span.End()

	log := p.log.WithField("step", s.name)
	log.Debug("step started")
	start := time.Now()

	if err := s.run(ctx, res); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Error("step failed")
		return &StepError{Step: s.name, Err: err}
	}

	elapsed := time.Since(start)
	res.Timings = append(res.Timings, visualization.StepTiming{Step: s.name, Duration: elapsed})
	log.WithField("duration", elapsed.Round(time.Millisecond)).Info("step finished")
	return nil
}
