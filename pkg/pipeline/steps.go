package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"atlasreg/internal/models"
	"atlasreg/pkg/atlas"
	"atlasreg/pkg/fsl"
	"atlasreg/pkg/naming"
	"atlasreg/pkg/tracing"
	"atlasreg/pkg/visualization"
	"atlasreg/pkg/workspace"
)

func annotate(ctx context.Context, tool string, output string) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(tracing.AttrTool, tool),
		attribute.String(tracing.AttrOutput, output),
	)
}

func (p *Pipeline) prepare(ctx context.Context, res *Result) error {
	// Nothing is created or launched before the input is known to exist.
	if err := workspace.CheckInput(p.params.T1); err != nil {
		return err
	}

	assets := p.params.Assets
	if assets.Template.Path == "" || assets.Labels.Path == "" {
		var err error
		if assets, err = atlas.Resolve(p.cfg.Assets); err != nil {
			return err
		}
	}

	ws, err := p.preparer.Prepare(ctx, p.params.T1, p.params.OutputDir, assets)
	if err != nil {
		return err
	}
	res.Workspace = ws
	if ws.Converted {
		annotate(ctx, p.cfg.Tools.Convert, ws.T1.Path)
	}
	return nil
}

func (p *Pipeline) affine(ctx context.Context, res *Result) error {
	ws := res.Workspace
	mat, err := p.toolkit.Flirt(ctx, ws.T1, ws.Template, fsl.AffineOptions{
		DOF:  p.cfg.Registration.DOF,
		Cost: p.cfg.Registration.Cost,
	})
	if err != nil {
		return err
	}
	res.Affine = mat
	annotate(ctx, p.cfg.Tools.Flirt, mat.Path)
	return nil
}

func (p *Pipeline) nonlinear(ctx context.Context, res *Result) error {
	ws := res.Workspace
	warp, err := p.toolkit.Fnirt(ctx, ws.T1, ws.Template, res.Affine, fsl.NonlinearOptions{
		Interp: p.cfg.Registration.NonlinearInterp,
	})
	if err != nil {
		return err
	}
	res.Warp = warp
	annotate(ctx, p.cfg.Tools.Fnirt, warp.Path)
	return nil
}

func (p *Pipeline) invert(ctx context.Context, res *Result) error {
	inv, err := p.toolkit.InvWarp(ctx, res.Warp, res.Workspace.T1)
	if err != nil {
		return err
	}
	res.InverseWarp = inv
	annotate(ctx, p.cfg.Tools.InvWarp, inv.Path)
	return nil
}

func (p *Pipeline) transferTemplate(ctx context.Context, res *Result) error {
	interp, err := fsl.ParseInterp(p.cfg.Registration.TemplateInterp)
	if err != nil {
		return err
	}
	ws := res.Workspace
	out, err := p.toolkit.ApplyWarp(ctx, ws.Template, ws.T1, res.InverseWarp, interp, naming.SuffixMNI)
	if err != nil {
		return err
	}
	res.TemplateInSubject = out
	annotate(ctx, p.cfg.Tools.ApplyWarp, out.Path)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(tracing.AttrInterp, string(interp)))
	return nil
}

func (p *Pipeline) transferAtlas(ctx context.Context, res *Result) error {
	ws := res.Workspace
	out, err := p.toolkit.ApplyWarp(ctx, ws.Labels, ws.T1, res.InverseWarp, fsl.InterpNearest, naming.SuffixHammers)
	if err != nil {
		return err
	}
	res.LabelsInSubject = out
	annotate(ctx, p.cfg.Tools.ApplyWarp, out.Path)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(tracing.AttrInterp, string(fsl.InterpNearest)))
	return nil
}

func (p *Pipeline) verifyLabels(_ context.Context, res *Result) error {
	report, err := p.verify(res.Workspace.Labels.Path, res.LabelsInSubject.Path)
	if err != nil {
		return fmt.Errorf("label verification: %w", err)
	}
	res.Labels = &report

	if len(report.Missing) > 0 {
		p.log.WithField("labels", report.Missing).Warn("labels vanished during warping")
	}
	p.log.WithField("count_correlation", fmt.Sprintf("%.3f", report.CountCorrelation)).
		Infof("%d of %d atlas labels present in subject space",
			len(report.SourceLabels)-len(report.Missing), len(report.SourceLabels))

	return report.Check(p.cfg.Output.RequireAllLabels)
}

func (p *Pipeline) present(ctx context.Context, res *Result) error {
	ws := res.Workspace

	if p.cfg.Output.Manifest {
		path, err := visualization.WriteManifest(ws.Dir, p.manifest(res))
		if err != nil {
			return err
		}
		res.ManifestPath = path
		p.log.WithField("path", path).Info("manifest written")
	}

	if p.cfg.Output.Viewer && p.params.Interactive {
		volumes := []models.Volume{ws.T1, ws.Template, res.TemplateInSubject, ws.Labels, res.LabelsInSubject}
		// The viewer is a convenience; the results are complete without it.
		if err := p.viewer.Show(ctx, volumes, res.LabelsInSubject); err != nil {
			p.log.WithError(err).Warn("could not launch viewer")
		}
	}
	return nil
}

func (p *Pipeline) manifest(res *Result) *visualization.Manifest {
	ws := res.Workspace
	timings := append([]visualization.StepTiming(nil), res.Timings...)
	return &visualization.Manifest{
		RunID:     res.RunID,
		Subject:   naming.Base(p.params.T1),
		Input:     p.params.T1,
		OutputDir: ws.Dir,
		Started:   res.Started,
		Finished:  time.Now(),
		Converted: ws.Converted,
		Artifacts: visualization.Artifacts{
			T1:                ws.T1.Path,
			Template:          ws.Template.Path,
			Labels:            ws.Labels.Path,
			AffineMatrix:      res.Affine.Path,
			AffineRegistered:  naming.WithSuffix(ws.T1.Path, naming.SuffixReg),
			NonlinRegistered:  naming.WithSuffix(ws.T1.Path, naming.SuffixNonlin),
			Warp:              res.Warp.Path,
			InverseWarp:       res.InverseWarp.Path,
			TemplateInSubject: res.TemplateInSubject.Path,
			LabelsInSubject:   res.LabelsInSubject.Path,
		},
		Steps:  timings,
		Labels: res.Labels,
	}
}
