package tracing

// Span attribute keys.
const (
	AttrRunID      = "run.id"
	AttrRunMode    = "run.mode"
	AttrRunOutcome = "run.outcome"

	AttrSeriesKey    = "series.key"
	AttrSeriesSource = "series.source"
	AttrSeriesStatus = "series.status"
	AttrSeriesRows   = "series.rows"

	AttrArtifactDigest = "artifact.digest"
	AttrArtifactPath   = "artifact.path"

	AttrDistributeTarget = "distribute.target"

	AttrBriefSection = "brief.section"
)

// Span names.
const (
	SpanRun          = "run"
	SpanPrefixPhase  = "phase."
	SpanFetchSeries  = "fetch.series"
	SpanDistribute   = "distribute.target"
	SpanBriefSection = "brief.section"
)

// Phase names used with SpanPrefixPhase.
const (
	PhaseFetch      = "fetch"
	PhaseTransform  = "transform"
	PhaseBrief      = "brief"
	PhaseVerify     = "verify"
	PhasePublish    = "publish"
	PhaseDistribute = "distribute"
)

// Event names.
const (
	EventCacheHit          = "cache.hit"
	EventFallbackUsed      = "fallback.used"
	EventArtifactUnchanged = "artifact.unchanged"
	EventPendingRetry      = "distribution.pending_retry"
)
