package camera

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// FeatureType is the value type of a camera feature.
type FeatureType uint8

const (
	FeatureInt FeatureType = iota + 1
	FeatureFloat
	FeatureString
	FeatureBool
	FeatureEnum
	FeatureCommand
)

// String returns the feature type name.
func (t FeatureType) String() string {
	switch t {
	case FeatureInt:
		return "Integer"
	case FeatureFloat:
		return "Float"
	case FeatureString:
		return "String"
	case FeatureBool:
		return "Boolean"
	case FeatureEnum:
		return "Enumeration"
	case FeatureCommand:
		return "Command"
	default:
		return "Unknown"
	}
}

// Access flags for features.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadOnly  = AccessRead
	AccessReadWrite = AccessRead | AccessWrite
)

// CanRead returns true if reading is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite returns true if writing is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// Feature errors.
var (
	ErrFeatureNotFound    = errors.New("feature not found")
	ErrFeatureType        = errors.New("wrong feature type")
	ErrFeatureNotWritable = errors.New("feature is not writable")
	ErrFeatureNotReadable = errors.New("feature is not readable")
	ErrFeatureLocked      = errors.New("feature is locked while streaming")
	ErrOutOfRange         = errors.New("value out of range")
	ErrInvalidIncrement   = errors.New("value does not match increment")
	ErrInvalidEnumEntry   = errors.New("invalid enum entry")
	ErrStringTooLong      = errors.New("string exceeds maximum length")
)

// FeatureInfo describes a feature.
type FeatureInfo struct {
	Name        string
	Category    string
	Type        FeatureType
	Access      Access
	Unit        string
	Description string

	// StreamLocked features cannot be written while streaming.
	StreamLocked bool

	// Int constraints.
	IntMin, IntMax, IntInc int64

	// Float constraints.
	FloatMin, FloatMax float64

	// MaxLength limits string values; 0 means unlimited.
	MaxLength int

	// Options lists enum entries.
	Options []string
}

// Feature is one feature and its current value.
type Feature struct {
	info  FeatureInfo
	value any

	// onRun executes a command feature.
	onRun func() error
}

// Info returns the feature description.
func (f *Feature) Info() FeatureInfo {
	return f.info
}

// FeatureStore holds the device features.
type FeatureStore struct {
	mu        sync.RWMutex
	features  map[string]*Feature
	streaming func() bool
	onChange  func(name string, value any)
}

// NewFeatureStore creates an empty store. streaming reports whether
// stream-locked features must reject writes; nil means never.
func NewFeatureStore(streaming func() bool) *FeatureStore {
	if streaming == nil {
		streaming = func() bool { return false }
	}
	return &FeatureStore{
		features:  make(map[string]*Feature),
		streaming: streaming,
	}
}

// OnChange registers a callback for successful writes.
func (s *FeatureStore) OnChange(fn func(name string, value any)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Add registers a feature with its initial value.
func (s *FeatureStore) Add(info FeatureInfo, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[info.Name] = &Feature{info: info, value: value}
}

// AddCommand registers a command feature.
func (s *FeatureStore) AddCommand(info FeatureInfo, run func() error) {
	info.Type = FeatureCommand
	if info.Access == 0 {
		info.Access = AccessWrite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[info.Name] = &Feature{info: info, onRun: run}
}

// Names returns the feature names, sorted.
func (s *FeatureStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.features))
	for name := range s.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the description of a feature.
func (s *FeatureStore) Info(name string) (FeatureInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[name]
	if !ok {
		return FeatureInfo{}, fmt.Errorf("%w: %s", ErrFeatureNotFound, name)
	}
	return f.info, nil
}

// Int returns an integer feature.
func (s *FeatureStore) Int(name string) (int64, error) {
	v, err := s.read(name, FeatureInt)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// SetInt writes an integer feature, enforcing min, max and increment.
func (s *FeatureStore) SetInt(name string, value int64) error {
	return s.write(name, FeatureInt, value, func(info FeatureInfo) error {
		if value < info.IntMin || value > info.IntMax {
			return fmt.Errorf("%w: %s=%d not in [%d, %d]", ErrOutOfRange, name, value, info.IntMin, info.IntMax)
		}
		if info.IntInc > 1 && (value-info.IntMin)%info.IntInc != 0 {
			return fmt.Errorf("%w: %s=%d, increment %d", ErrInvalidIncrement, name, value, info.IntInc)
		}
		return nil
	})
}

// Float returns a float feature.
func (s *FeatureStore) Float(name string) (float64, error) {
	v, err := s.read(name, FeatureFloat)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// SetFloat writes a float feature, enforcing min and max.
func (s *FeatureStore) SetFloat(name string, value float64) error {
	return s.write(name, FeatureFloat, value, func(info FeatureInfo) error {
		if math.IsNaN(value) || math.IsInf(value, 0) || value < info.FloatMin || value > info.FloatMax {
			return fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrOutOfRange, name, value, info.FloatMin, info.FloatMax)
		}
		return nil
	})
}

// StringValue returns a string feature.
func (s *FeatureStore) StringValue(name string) (string, error) {
	v, err := s.read(name, FeatureString)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SetString writes a string feature.
func (s *FeatureStore) SetString(name, value string) error {
	return s.write(name, FeatureString, value, func(info FeatureInfo) error {
		if info.MaxLength > 0 && len(value) > info.MaxLength {
			return fmt.Errorf("%w: %s (%d > %d)", ErrStringTooLong, name, len(value), info.MaxLength)
		}
		return nil
	})
}

// Bool returns a boolean feature.
func (s *FeatureStore) Bool(name string) (bool, error) {
	v, err := s.read(name, FeatureBool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// SetBool writes a boolean feature.
func (s *FeatureStore) SetBool(name string, value bool) error {
	return s.write(name, FeatureBool, value, nil)
}

// Enum returns the current entry of an enum feature.
func (s *FeatureStore) Enum(name string) (string, error) {
	v, err := s.read(name, FeatureEnum)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SetEnum selects an enum entry.
func (s *FeatureStore) SetEnum(name, value string) error {
	return s.write(name, FeatureEnum, value, func(info FeatureInfo) error {
		for _, opt := range info.Options {
			if opt == value {
				return nil
			}
		}
		return fmt.Errorf("%w: %s=%q", ErrInvalidEnumEntry, name, value)
	})
}

// Run executes a command feature.
func (s *FeatureStore) Run(name string) error {
	s.mu.RLock()
	f, ok := s.features[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, name)
	}
	if f.info.Type != FeatureCommand {
		return fmt.Errorf("%w: %s is %s", ErrFeatureType, name, f.info.Type)
	}
	if f.onRun == nil {
		return nil
	}
	return f.onRun()
}

// Snapshot returns the values of all readable and writable, non-command
// features.
func (s *FeatureStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.features))
	for name, f := range s.features {
		if f.info.Type == FeatureCommand || !f.info.Access.CanWrite() || !f.info.Access.CanRead() {
			continue
		}
		out[name] = f.value
	}
	return out
}

// Apply writes a set of values, converting loosely typed input (as
// decoded from YAML) to each feature's type. Stops at the first error.
func (s *FeatureStore) Apply(values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info, err := s.Info(name)
		if err != nil {
			return err
		}
		if err := s.applyOne(info, values[name]); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

func (s *FeatureStore) applyOne(info FeatureInfo, raw any) error {
	switch info.Type {
	case FeatureInt:
		v, ok := toInt64(raw)
		if !ok {
			return fmt.Errorf("%w: expected integer, got %T", ErrFeatureType, raw)
		}
		return s.SetInt(info.Name, v)
	case FeatureFloat:
		v, ok := toFloat64(raw)
		if !ok {
			return fmt.Errorf("%w: expected float, got %T", ErrFeatureType, raw)
		}
		return s.SetFloat(info.Name, v)
	case FeatureString:
		v, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%w: expected string, got %T", ErrFeatureType, raw)
		}
		return s.SetString(info.Name, v)
	case FeatureBool:
		v, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("%w: expected bool, got %T", ErrFeatureType, raw)
		}
		return s.SetBool(info.Name, v)
	case FeatureEnum:
		v, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%w: expected enum entry, got %T", ErrFeatureType, raw)
		}
		return s.SetEnum(info.Name, v)
	default:
		return fmt.Errorf("%w: %s cannot be applied", ErrFeatureType, info.Type)
	}
}

func (s *FeatureStore) read(name string, want FeatureType) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, name)
	}
	if f.info.Type != want {
		return nil, fmt.Errorf("%w: %s is %s", ErrFeatureType, name, f.info.Type)
	}
	if !f.info.Access.CanRead() {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotReadable, name)
	}
	return f.value, nil
}

func (s *FeatureStore) write(name string, want FeatureType, value any, check func(FeatureInfo) error) error {
	s.mu.Lock()
	f, ok := s.features[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, name)
	}
	if f.info.Type != want {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrFeatureType, name, f.info.Type)
	}
	if !f.info.Access.CanWrite() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFeatureNotWritable, name)
	}
	if f.info.StreamLocked && s.streaming() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFeatureLocked, name)
	}
	if check != nil {
		if err := check(f.info); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	f.value = value
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(name, value)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		i, ok := toInt64(v)
		return float64(i), ok
	}
}
