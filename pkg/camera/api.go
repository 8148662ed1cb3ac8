package camera

// Service and topic names, relative to the camera's namespace.
const (
	TopicImageRaw   = "image_raw"
	TopicCameraInfo = "camera_info"

	ServiceStreamStart       = "stream_start"
	ServiceStreamStop        = "stream_stop"
	ServiceFeaturesList      = "features/list_get"
	ServiceFeatureIntGet     = "features/int_get"
	ServiceFeatureIntSet     = "features/int_set"
	ServiceFeatureIntInfo    = "features/int_info_get"
	ServiceFeatureFloatGet   = "features/float_get"
	ServiceFeatureFloatSet   = "features/float_set"
	ServiceFeatureStringGet  = "features/string_get"
	ServiceFeatureStringSet  = "features/string_set"
	ServiceFeatureBoolGet    = "features/bool_get"
	ServiceFeatureBoolSet    = "features/bool_set"
	ServiceFeatureEnumGet    = "features/enum_get"
	ServiceFeatureEnumSet    = "features/enum_set"
	ServiceFeatureEnumInfo   = "features/enum_info_get"
	ServiceFeatureCommandRun = "features/command_run"
	ServiceSettingsSave      = "settings/save"
	ServiceSettingsLoad      = "settings/load"
	ServiceCameraInfoGet     = "camera_info_get"
)

// FeatureRequest names a feature.
type FeatureRequest struct {
	FeatureName string `cbor:"1,keyasint"`
}

// IntValue carries an integer feature value.
type IntValue struct {
	Value int64 `cbor:"1,keyasint"`
}

// IntSetRequest writes an integer feature.
type IntSetRequest struct {
	FeatureName string `cbor:"1,keyasint"`
	Value       int64  `cbor:"2,keyasint"`
}

// IntInfo describes an integer feature's constraints.
type IntInfo struct {
	Min int64 `cbor:"1,keyasint"`
	Max int64 `cbor:"2,keyasint"`
	Inc int64 `cbor:"3,keyasint"`
}

// FloatValue carries a float feature value.
type FloatValue struct {
	Value float64 `cbor:"1,keyasint"`
}

// FloatSetRequest writes a float feature.
type FloatSetRequest struct {
	FeatureName string  `cbor:"1,keyasint"`
	Value       float64 `cbor:"2,keyasint"`
}

// StringValue carries a string feature value.
type StringValue struct {
	Value string `cbor:"1,keyasint"`
}

// StringSetRequest writes a string feature.
type StringSetRequest struct {
	FeatureName string `cbor:"1,keyasint"`
	Value       string `cbor:"2,keyasint"`
}

// BoolValue carries a boolean feature value.
type BoolValue struct {
	Value bool `cbor:"1,keyasint"`
}

// BoolSetRequest writes a boolean feature.
type BoolSetRequest struct {
	FeatureName string `cbor:"1,keyasint"`
	Value       bool   `cbor:"2,keyasint"`
}

// EnumValue carries an enum entry.
type EnumValue struct {
	Value string `cbor:"1,keyasint"`
}

// EnumSetRequest selects an enum entry.
type EnumSetRequest struct {
	FeatureName string `cbor:"1,keyasint"`
	Value       string `cbor:"2,keyasint"`
}

// EnumInfo lists the entries of an enum feature.
type EnumInfo struct {
	Options []string `cbor:"1,keyasint"`
}

// FeatureList is the answer to features/list_get.
type FeatureList struct {
	Names []string `cbor:"1,keyasint"`
}

// SettingsRequest names a settings file.
type SettingsRequest struct {
	FileName string `cbor:"1,keyasint"`
}

// StreamStartRequest starts streaming. BufferCount 0 keeps the configured
// value.
type StreamStartRequest struct {
	BufferCount int `cbor:"1,keyasint,omitempty"`
}

// StreamStatus is the answer to stream_start and stream_stop.
type StreamStatus struct {
	Streaming   bool `cbor:"1,keyasint"`
	BufferCount int  `cbor:"2,keyasint,omitempty"`
}
