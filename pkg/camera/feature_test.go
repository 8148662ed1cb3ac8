package camera

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(streaming *bool) *FeatureStore {
	s := NewFeatureStore(func() bool { return streaming != nil && *streaming })
	s.Add(FeatureInfo{Name: "Width", Type: FeatureInt, Access: AccessReadWrite,
		StreamLocked: true, IntMin: 8, IntMax: 64, IntInc: 4}, int64(16))
	s.Add(FeatureInfo{Name: "Gain", Type: FeatureFloat, Access: AccessReadWrite,
		FloatMin: 0, FloatMax: 10}, 1.5)
	s.Add(FeatureInfo{Name: "Label", Type: FeatureString, Access: AccessReadWrite, MaxLength: 4}, "ab")
	s.Add(FeatureInfo{Name: "Serial", Type: FeatureString, Access: AccessReadOnly}, "SN1")
	s.Add(FeatureInfo{Name: "Flip", Type: FeatureBool, Access: AccessReadWrite}, false)
	s.Add(FeatureInfo{Name: "Mode", Type: FeatureEnum, Access: AccessReadWrite,
		Options: []string{"Off", "On"}}, "Off")
	return s
}

func TestFeatureIntConstraints(t *testing.T) {
	s := testStore(nil)

	require.NoError(t, s.SetInt("Width", 32))
	v, err := s.Int("Width")
	require.NoError(t, err)
	assert.Equal(t, int64(32), v)

	assert.ErrorIs(t, s.SetInt("Width", 4), ErrOutOfRange)
	assert.ErrorIs(t, s.SetInt("Width", 128), ErrOutOfRange)
	assert.ErrorIs(t, s.SetInt("Width", 33), ErrInvalidIncrement)
	assert.ErrorIs(t, s.SetInt("Missing", 1), ErrFeatureNotFound)
	assert.ErrorIs(t, s.SetInt("Gain", 1), ErrFeatureType)
}

func TestFeatureTypes(t *testing.T) {
	s := testStore(nil)

	require.NoError(t, s.SetFloat("Gain", 9.5))
	g, _ := s.Float("Gain")
	assert.InDelta(t, 9.5, g, 1e-9)
	assert.ErrorIs(t, s.SetFloat("Gain", 11), ErrOutOfRange)
	assert.ErrorIs(t, s.SetFloat("Gain", math.NaN()), ErrOutOfRange)
	assert.ErrorIs(t, s.SetFloat("Gain", math.Inf(1)), ErrOutOfRange)
	g, _ = s.Float("Gain")
	assert.InDelta(t, 9.5, g, 1e-9, "rejected writes leave the value")

	assert.ErrorIs(t, s.SetString("Label", "toolong"), ErrStringTooLong)
	assert.ErrorIs(t, s.SetString("Serial", "x"), ErrFeatureNotWritable)
	serial, err := s.StringValue("Serial")
	require.NoError(t, err)
	assert.Equal(t, "SN1", serial)

	require.NoError(t, s.SetBool("Flip", true))
	flip, _ := s.Bool("Flip")
	assert.True(t, flip)

	assert.ErrorIs(t, s.SetEnum("Mode", "Maybe"), ErrInvalidEnumEntry)
	require.NoError(t, s.SetEnum("Mode", "On"))
	mode, _ := s.Enum("Mode")
	assert.Equal(t, "On", mode)
}

func TestFeatureStreamLock(t *testing.T) {
	streaming := true
	s := testStore(&streaming)

	assert.ErrorIs(t, s.SetInt("Width", 32), ErrFeatureLocked)
	assert.NoError(t, s.SetFloat("Gain", 2), "unlocked features stay writable")

	streaming = false
	assert.NoError(t, s.SetInt("Width", 32))
}

func TestFeatureCommand(t *testing.T) {
	s := testStore(nil)
	runs := 0
	s.AddCommand(FeatureInfo{Name: "Go"}, func() error { runs++; return nil })

	require.NoError(t, s.Run("Go"))
	assert.Equal(t, 1, runs)
	assert.ErrorIs(t, s.Run("Width"), ErrFeatureType)

	info, err := s.Info("Go")
	require.NoError(t, err)
	assert.Equal(t, FeatureCommand, info.Type)
	assert.NotContains(t, s.Snapshot(), "Go")
}

func TestFeatureSnapshotApply(t *testing.T) {
	s := testStore(nil)
	var changed []string
	s.OnChange(func(name string, _ any) { changed = append(changed, name) })

	snap := s.Snapshot()
	assert.NotContains(t, snap, "Serial", "read-only features are not persisted")
	assert.Equal(t, int64(16), snap["Width"])

	// YAML decodes numbers as int or float64.
	require.NoError(t, s.Apply(map[string]any{"Width": 24, "Gain": 3, "Mode": "On", "Flip": true}))
	w, _ := s.Int("Width")
	g, _ := s.Float("Gain")
	assert.Equal(t, int64(24), w)
	assert.InDelta(t, 3.0, g, 1e-9)
	assert.Equal(t, []string{"Flip", "Gain", "Mode", "Width"}, changed)

	err := s.Apply(map[string]any{"Width": "wide"})
	assert.ErrorIs(t, err, ErrFeatureType)
	assert.ErrorIs(t, s.Apply(map[string]any{"Nope": 1}), ErrFeatureNotFound)
}
