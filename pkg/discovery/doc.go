// Package discovery implements mDNS/DNS-SD discovery of camharness brokers.
//
// Brokers advertise the _camharness._tcp service. The instance name is the
// broker's instance ID; TXT records carry:
//
//   - id: broker instance ID (UUID)
//   - ver: protocol version
//   - nodes: number of nodes currently registered (optional)
//
// Clients use FindBroker to pick the first broker that answers, or Browse
// to watch brokers come and go.
package discovery
