package harness

import (
	"fmt"

	"github.com/google/uuid"
)

// IdentifierLength is the length of a harness identifier.
const IdentifierLength = 8

// Node name prefixes.
const (
	CameraNodePrefix = "vimbax_camera_test_"
	TestNodePrefix   = "_test_node_"
)

// Identifier distinguishes concurrent harness runs on a shared graph.
type Identifier string

// IDGenerator produces identifiers. Tests inject a fixed one.
type IDGenerator func() Identifier

const identifierAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateIdentifier returns IdentifierLength random characters from
// [a-z0-9], drawn uniformly from the random bytes of version 4 UUIDs.
func GenerateIdentifier() Identifier {
	// Largest multiple of the alphabet size below 256.
	const limit = 256 - 256%len(identifierAlphabet)
	out := make([]byte, 0, IdentifierLength)
	for len(out) < IdentifierLength {
		u := uuid.New()
		for i, b := range u {
			// Bytes 6 and 8 carry the version and variant bits.
			if i == 6 || i == 8 || int(b) >= limit {
				continue
			}
			out = append(out, identifierAlphabet[int(b)%len(identifierAlphabet)])
			if len(out) == IdentifierLength {
				break
			}
		}
	}
	return Identifier(out)
}

// FixedIdentifier returns a generator that always yields id.
func FixedIdentifier(id Identifier) IDGenerator {
	return func() Identifier { return id }
}

// Validate checks the identifier alphabet. Any non-empty [a-z0-9] string
// is accepted so fixed test identifiers such as "h1" work.
func (id Identifier) Validate() error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, string(id))
		}
	}
	return nil
}

// CameraNodeName returns the camera node name for id.
func (id Identifier) CameraNodeName() string {
	return CameraNodePrefix + string(id)
}

// TestNodeName returns the test node name for id.
func (id Identifier) TestNodeName() string {
	return TestNodePrefix + string(id)
}

func (id Identifier) String() string {
	return string(id)
}
