package telemetry

// Span names.
const (
	SpanSessionOpen    = "session.open"
	SpanSessionLoad    = "session.load_manifest"
	SpanSessionRefresh = "session.refresh"
	SpanUpstreamCall   = "upstream.call"
	SpanPositionPoll   = "realtime.poll"
)
