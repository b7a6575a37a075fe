package tracing

// Span attribute keys for pipeline tracing.
const (
	AttrRunID   = "run.id"
	AttrSubject = "run.subject"
	AttrStep    = "pipeline.step"
	AttrTool    = "tool.name"
	AttrInput   = "artifact.input"
	AttrOutput  = "artifact.output"
	AttrInterp  = "resample.interp"
)
