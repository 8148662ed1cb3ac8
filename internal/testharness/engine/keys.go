package engine

// InternalStepOutput holds the complete output of the latest step.
const InternalStepOutput = "__step_output"

// Output keys shared by runner handlers and checkers.
const (
	KeyValue    = "value"
	KeyError    = "error"
	KeyDuration = "duration"
	KeyStamps   = "stamps"
	KeySeqs     = "seqs"
)

// Checker names as they appear under expect: in scenario files.
const (
	CheckerNameDefault       = "default"
	CheckerNameValueGT       = "value_gt"
	CheckerNameValueLT       = "value_lt"
	CheckerNameValueInRange  = "value_in_range"
	CheckerNameValueEquals   = "value_equals"
	CheckerNameValueNotNull  = "value_is_not_null"
	CheckerNameContains      = "contains"
	CheckerNameErrorContains = "error_contains"
	CheckerNameNoError       = "no_error"
	CheckerNameDurationUnder = "duration_under"
	CheckerNameSaveAs        = "save_as"
	CheckerNameFramesInOrder = "frames_in_order"
)
