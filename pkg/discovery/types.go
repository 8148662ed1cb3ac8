package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of a broker.
	ServiceType = "_camharness._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default broker port.
	DefaultPort = 7447

	// ProtocolVersion is advertised in the ver TXT key.
	ProtocolVersion = "1"
)

// TXT record keys.
const (
	TXTKeyID      = "id"
	TXTKeyVersion = "ver"
	TXTKeyNodes   = "nodes"
)

// Timing and size limits.
const (
	// BrowseTimeout is the default timeout for FindBroker.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required field")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("broker not found")
	ErrBrowseTimeout       = errors.New("browse timeout")
)

// BrokerInfo is what a broker advertises about itself.
type BrokerInfo struct {
	// InstanceID identifies the broker; also used as instance name.
	InstanceID string

	// Port is the TCP port of the broker.
	Port uint16

	// Version is the protocol version (default: ProtocolVersion).
	Version string

	// NodeCount is the number of registered nodes.
	NodeCount int
}

// Validate checks the info for advertising.
func (i *BrokerInfo) Validate() error {
	if i.InstanceID == "" {
		return ErrMissingRequired
	}
	if len(i.InstanceID) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// BrokerService is a broker found by browsing.
type BrokerService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	InstanceID   string
	Version      string
	NodeCount    int
}

// Address returns a dialable host:port, preferring the first resolved
// address over the host name.
func (s *BrokerService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}
