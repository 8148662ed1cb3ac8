package camera

import (
	"context"

	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/wire"
)

// handler adapts a typed request/response function to a bus service.
// Decode failures are invalid requests; any other error is a rejection
// the caller sees as a *bus.ServiceError.
func handler[Req, Resp any](fn func(*Req) (*Resp, error)) bus.ServiceHandler {
	return func(_ context.Context, data []byte) ([]byte, error) {
		var req Req
		if len(data) > 0 {
			if err := wire.Unmarshal(data, &req); err != nil {
				return nil, bus.InvalidRequest("decode request: %v", err)
			}
		}
		resp, err := fn(&req)
		if err != nil {
			return nil, bus.Reject("%v", err)
		}
		return wire.Marshal(resp)
	}
}

func (c *Camera) registerServices() error {
	services := map[string]bus.ServiceHandler{
		ServiceStreamStart: handler(func(req *StreamStartRequest) (*StreamStatus, error) {
			if err := c.startStream(req.BufferCount); err != nil {
				return nil, err
			}
			return &StreamStatus{Streaming: true, BufferCount: c.BufferCount()}, nil
		}),
		ServiceStreamStop: handler(func(*struct{}) (*StreamStatus, error) {
			if err := c.StopStream(); err != nil {
				return nil, err
			}
			return &StreamStatus{Streaming: false}, nil
		}),
		ServiceFeaturesList: handler(func(*struct{}) (*FeatureList, error) {
			return &FeatureList{Names: c.features.Names()}, nil
		}),

		ServiceFeatureIntGet: handler(func(r *FeatureRequest) (*IntValue, error) {
			v, err := c.features.Int(r.FeatureName)
			return &IntValue{Value: v}, err
		}),
		ServiceFeatureIntSet: handler(func(r *IntSetRequest) (*IntValue, error) {
			return &IntValue{Value: r.Value}, c.features.SetInt(r.FeatureName, r.Value)
		}),
		ServiceFeatureIntInfo: handler(func(r *FeatureRequest) (*IntInfo, error) {
			info, err := c.typedInfo(r.FeatureName, FeatureInt)
			return &IntInfo{Min: info.IntMin, Max: info.IntMax, Inc: info.IntInc}, err
		}),

		ServiceFeatureFloatGet: handler(func(r *FeatureRequest) (*FloatValue, error) {
			v, err := c.features.Float(r.FeatureName)
			return &FloatValue{Value: v}, err
		}),
		ServiceFeatureFloatSet: handler(func(r *FloatSetRequest) (*FloatValue, error) {
			return &FloatValue{Value: r.Value}, c.features.SetFloat(r.FeatureName, r.Value)
		}),

		ServiceFeatureStringGet: handler(func(r *FeatureRequest) (*StringValue, error) {
			v, err := c.features.StringValue(r.FeatureName)
			return &StringValue{Value: v}, err
		}),
		ServiceFeatureStringSet: handler(func(r *StringSetRequest) (*StringValue, error) {
			return &StringValue{Value: r.Value}, c.features.SetString(r.FeatureName, r.Value)
		}),

		ServiceFeatureBoolGet: handler(func(r *FeatureRequest) (*BoolValue, error) {
			v, err := c.features.Bool(r.FeatureName)
			return &BoolValue{Value: v}, err
		}),
		ServiceFeatureBoolSet: handler(func(r *BoolSetRequest) (*BoolValue, error) {
			return &BoolValue{Value: r.Value}, c.features.SetBool(r.FeatureName, r.Value)
		}),

		ServiceFeatureEnumGet: handler(func(r *FeatureRequest) (*EnumValue, error) {
			v, err := c.features.Enum(r.FeatureName)
			return &EnumValue{Value: v}, err
		}),
		ServiceFeatureEnumSet: handler(func(r *EnumSetRequest) (*EnumValue, error) {
			return &EnumValue{Value: r.Value}, c.features.SetEnum(r.FeatureName, r.Value)
		}),
		ServiceFeatureEnumInfo: handler(func(r *FeatureRequest) (*EnumInfo, error) {
			info, err := c.typedInfo(r.FeatureName, FeatureEnum)
			return &EnumInfo{Options: info.Options}, err
		}),

		ServiceFeatureCommandRun: handler(func(r *FeatureRequest) (*struct{}, error) {
			return &struct{}{}, c.features.Run(r.FeatureName)
		}),

		ServiceSettingsSave: handler(func(r *SettingsRequest) (*struct{}, error) {
			return &struct{}{}, c.SaveSettings(r.FileName)
		}),
		ServiceSettingsLoad: handler(func(r *SettingsRequest) (*struct{}, error) {
			return &struct{}{}, c.LoadSettings(r.FileName)
		}),
		ServiceCameraInfoGet: handler(func(*struct{}) (*CameraInfo, error) {
			info := c.CameraInfo()
			return &info, nil
		}),
	}

	for name, h := range services {
		if _, err := c.node.CreateService(name, h); err != nil {
			return err
		}
	}
	return nil
}

func (c *Camera) typedInfo(name string, want FeatureType) (FeatureInfo, error) {
	info, err := c.features.Info(name)
	if err != nil {
		return info, err
	}
	if info.Type != want {
		return info, ErrFeatureType
	}
	return info, nil
}
