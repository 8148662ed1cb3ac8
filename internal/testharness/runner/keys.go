package runner

// Action names as they appear in scenario steps.
const (
	ActionSubscribeImageRaw   = "subscribe_image_raw"
	ActionUnsubscribeImageRaw = "unsubscribe_image_raw"
	ActionWaitForFrame        = "wait_for_frame"
	ActionWaitForFrames       = "wait_for_frames"
	ActionClearQueue          = "clear_queue"
	ActionQueueLength         = "queue_length"
	ActionCallService         = "call_service"
	ActionGetFeature          = "get_feature"
	ActionSetFeature          = "set_feature"
	ActionStreamStart         = "stream_start"
	ActionStreamStop          = "stream_stop"
	ActionPublishFrames       = "publish_frames"
	ActionNodeIdentity        = "node_identity"
	ActionWait                = "wait"
)

// Step parameters.
const (
	ParamTimeoutMs  = "timeout_ms"
	ParamDurationMs = "duration_ms"
	ParamCount      = "count"
	ParamService    = "service"
	ParamFeature    = "feature"
	ParamType       = "type"
	ParamValue      = "value"
	ParamFileName   = "file_name"
	ParamIntervalMs = "interval_ms"
)

// Step outputs. engine.KeyValue, KeyError, KeyDuration, KeyStamps and
// KeySeqs are shared with the engine's checkers.
const (
	KeySubscribed = "subscribed"
	KeyErrorKind  = "error_kind"
	KeyReceived   = "received"
	KeySeq        = "seq"
	KeyStamp      = "stamp"
	KeyFrameID    = "frame_id"
	KeyWidth      = "width"
	KeyHeight     = "height"
	KeyEncoding   = "encoding"
	KeyStep       = "step"
	KeySize       = "size"
	KeyDigest     = "digest"
	KeyLatencyMs  = "latency_ms"
	KeyCount      = "count"
	KeyCleared    = "cleared"
	KeyStreaming  = "streaming"
	KeyPublished  = "published"
	KeyWaited     = "waited"
	KeyResponse   = "response"
)

// Identity outputs, set on the state before the first step so later
// steps can interpolate them.
const (
	StateHarnessID  = "harness_id"
	StateNodeName   = "node_name"
	StateCameraName = "camera_name"
	StateImageTopic = "image_topic"
)

// Error kinds reported under error_kind.
const (
	ErrorKindTimeout           = "timeout"
	ErrorKindAlreadySubscribed = "already_subscribed"
	ErrorKindNotSubscribed     = "not_subscribed"
	ErrorKindRemoteCall        = "remote_call_failure"
	ErrorKindStopped           = "stopped"
	ErrorKindOther             = "other"
)

// Frame checkers, in addition to the engine's.
const (
	CheckerFrameGeometry = "frame_geometry"
	CheckerFrameEncoding = "frame_encoding"
	CheckerFrameValid    = "frame_valid"
	CheckerFramesOrdered = "frames_ordered"
)

const customSession = "session"
