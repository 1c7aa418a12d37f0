package ring

import "fmt"

// Node is a descriptor for a peer participating in the hash ring.
// NodeID is the canonical "host:port" string and is the hashing input
// for ring placement; HashValue is cached at insertion time.
type Node struct {
	NodeID    string
	Host      string
	Port      int
	HashValue uint32
	Active    bool
}

// Equal reports whether two descriptors refer to the same node.
// Two descriptors are equal iff their NodeID matches.
func (n Node) Equal(other Node) bool {
	return n.NodeID == other.NodeID
}

// NewNode builds a descriptor from a host/port pair. The NodeID is the
// canonical "host:port" form used as the hashing input for placement.
func NewNode(host string, port int) Node {
	return Node{
		NodeID: fmt.Sprintf("%s:%d", host, port),
		Host:   host,
		Port:   port,
		Active: true,
	}
}
