package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// GossipRegistry is a PeerRegistry backed by hashicorp/memberlist: it
// joins a gossip cluster at startup and answers ListPeers from
// memberlist's locally-converged membership view. Grounded on the
// teacher's GossipService (memberlist.Delegate + event delegate), but
// trimmed to what the peer-registry contract needs: this package does
// not propagate application health payloads over gossip, only identity.
type GossipRegistry struct {
	ml     *memberlist.Memberlist
	logger *zap.Logger
}

// GossipConfig configures the underlying memberlist instance.
type GossipConfig struct {
	BindAddr string
	BindPort int
	NodeName string
	Seeds    []string
}

// NewGossipRegistry creates and starts a memberlist instance, joining
// any configured seed nodes. Failure to join a seed is logged, not
// fatal — memberlist itself tolerates partial seed availability.
func NewGossipRegistry(cfg GossipConfig, logger *zap.Logger) (*GossipRegistry, error) {
	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeName
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.LogOutput = nil

	delegate := &eventDelegate{logger: logger}
	mlConfig.Events = delegate

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}

	if len(cfg.Seeds) > 0 {
		if _, err := ml.Join(cfg.Seeds); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
	}

	return &GossipRegistry{ml: ml, logger: logger}, nil
}

// ListPeers satisfies PeerRegistry: it returns every member memberlist
// currently believes is alive, including the local node itself (the
// Watcher distinguishes self by comparing node identifiers).
func (g *GossipRegistry) ListPeers() ([]Peer, error) {
	members := g.ml.Members()
	peers := make([]Peer, 0, len(members))
	for _, m := range members {
		host, port, err := splitHostPort(m)
		if err != nil {
			g.logger.Warn("skipping unparsable gossip member",
				zap.String("name", m.Name), zap.Error(err))
			continue
		}
		peers = append(peers, Peer{Host: host, Port: port})
	}
	return peers, nil
}

// Shutdown leaves the gossip cluster and releases memberlist resources.
func (g *GossipRegistry) Shutdown() error {
	if err := g.ml.Leave(0); err != nil {
		g.logger.Warn("error leaving memberlist cluster", zap.Error(err))
	}
	return g.ml.Shutdown()
}

// splitHostPort recovers the ringkv node's "host:port" RPC address from
// a memberlist node. This registry uses the memberlist member's Name as
// the application-level "host:port" identity (set at construction to
// GossipConfig.NodeName), not its gossip BindPort.
func splitHostPort(m *memberlist.Node) (string, int, error) {
	idx := strings.LastIndex(m.Name, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("member name %q is not in host:port form", m.Name)
	}
	port, err := strconv.Atoi(m.Name[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("member name %q has non-numeric port: %w", m.Name, err)
	}
	return m.Name[:idx], port, nil
}

// eventDelegate logs membership churn observed by the local memberlist
// agent. Grounded on the teacher's GossipEventDelegate.
type eventDelegate struct {
	logger *zap.Logger
}

func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	d.logger.Info("gossip: node joined", zap.String("node", node.Name), zap.String("addr", node.Addr.String()))
}

func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.logger.Info("gossip: node left", zap.String("node", node.Name))
}

func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.logger.Debug("gossip: node updated", zap.String("node", node.Name))
}
