package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateIdentifier(t *testing.T) {
	seen := make(map[Identifier]bool)
	for i := 0; i < 100; i++ {
		id := GenerateIdentifier()
		assert.Len(t, string(id), IdentifierLength)
		assert.NoError(t, id.Validate())
		assert.False(t, seen[id], "duplicate identifier %s", id)
		seen[id] = true
	}
}

func TestGenerateIdentifierUsesFullAlphabet(t *testing.T) {
	chars := make(map[rune]bool)
	for i := 0; i < 200; i++ {
		for _, r := range GenerateIdentifier() {
			chars[r] = true
		}
	}
	var beyondHex int
	for r := range chars {
		if r >= 'g' && r <= 'z' {
			beyondHex++
		}
	}
	assert.Greater(t, beyondHex, 10, "identifiers draw from [a-z0-9], not hex digits")
	assert.LessOrEqual(t, len(chars), len(identifierAlphabet))
}

func TestIdentifierNames(t *testing.T) {
	id := FixedIdentifier("h1")()
	assert.Equal(t, Identifier("h1"), id)
	assert.Equal(t, "vimbax_camera_test_h1", id.CameraNodeName())
	assert.Equal(t, "_test_node_h1", id.TestNodeName())
}

func TestIdentifierValidate(t *testing.T) {
	tests := []struct {
		id    Identifier
		valid bool
	}{
		{"h1", true},
		{"0a1b2c3d", true},
		{"", false},
		{"H1", false},
		{"a-b", false},
		{"a/b", false},
	}
	for _, tt := range tests {
		err := tt.id.Validate()
		if tt.valid {
			assert.NoError(t, err, "%q", tt.id)
		} else {
			assert.ErrorIs(t, err, ErrInvalidIdentifier, "%q", tt.id)
		}
	}
}
