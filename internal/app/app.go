package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/meshmqtt/pkg/config"
	"github.com/backkem/meshmqtt/pkg/discovery"
	"github.com/backkem/meshmqtt/pkg/metrics"
	"github.com/backkem/meshmqtt/pkg/smqtt"
	"github.com/backkem/meshmqtt/pkg/transport"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMetricsStatsInterval is the stats period used when metrics are
// enabled and the configuration sets none.
const DefaultMetricsStatsInterval = 10 * time.Second

// Hooks lets a binary observe the node it runs.
type Hooks struct {
	// OnStats receives every periodic stats snapshot.
	OnStats func(smqtt.Stats)
}

// Runtime is the set of components built from one configuration.
type Runtime struct {
	Config        *config.Config
	LoggerFactory logging.LoggerFactory
	Mesh          *transport.Mesh
	Node          *smqtt.Node
	Exporter      *metrics.Exporter

	registry   *prometheus.Registry
	advertiser *discovery.Advertiser
	log        logging.LeveledLogger
}

// Setup builds the mesh transport and node described by cfg, and the
// optional discovery and metrics components around them.
func Setup(ctx context.Context, cfg *config.Config, hooks Hooks) (*Runtime, error) {
	lf := cfg.LoggerFactory()
	rt := &Runtime{
		Config:        cfg,
		LoggerFactory: lf,
		log:           lf.NewLogger("app"),
	}

	if cfg.Discovery.Browse {
		rt.browseGateways(ctx)
	}

	meshConfig, err := cfg.MeshConfig(lf)
	if err != nil {
		return nil, fmt.Errorf("mesh config: %w", err)
	}
	mesh, err := transport.NewMesh(meshConfig)
	if err != nil {
		return nil, fmt.Errorf("start mesh: %w", err)
	}
	rt.Mesh = mesh

	if cfg.Metrics.Enabled {
		rt.registry = prometheus.NewRegistry()
		rt.Exporter, err = metrics.NewExporter(metrics.ExporterConfig{
			Node:       cfg.Node.Name,
			Registerer: rt.registry,
		})
		if err != nil {
			mesh.Close()
			return nil, err
		}
	}

	nodeConfig := cfg.SmqttConfig(mesh, lf)
	nodeConfig.OnStats = func(s smqtt.Stats) {
		if rt.Exporter != nil {
			rt.Exporter.Observe(s)
		}
		if hooks.OnStats != nil {
			hooks.OnStats(s)
		}
	}
	nodeConfig.OnDeliveryFailed = func(replyID uint32, err error) {
		rt.log.Warnf("reply id %d: %v", replyID, err)
		if rt.Exporter != nil {
			rt.Exporter.DeliveryFailed(replyID, err)
		}
	}
	if rt.Exporter != nil && nodeConfig.StatsInterval == 0 {
		nodeConfig.StatsInterval = DefaultMetricsStatsInterval
	}

	node, err := smqtt.NewNode(nodeConfig)
	if err != nil {
		mesh.Close()
		return nil, fmt.Errorf("create node: %w", err)
	}
	rt.Node = node

	if cfg.Discovery.Advertise {
		if err := rt.advertise(); err != nil {
			rt.Close()
			return nil, err
		}
	}

	return rt, nil
}

// browseGateways adds every gateway found on the network to the mesh peers.
func (rt *Runtime) browseGateways(ctx context.Context) {
	resolver, err := discovery.NewResolver(discovery.ResolverConfig{
		BrowseTimeout: rt.Config.BrowseTimeout(),
		LoggerFactory: rt.LoggerFactory,
	})
	if err != nil {
		rt.log.Warnf("gateway discovery unavailable: %v", err)
		return
	}

	peers, err := resolver.DiscoverGatewayPeers(ctx)
	if err != nil {
		rt.log.Warnf("no gateways discovered: %v", err)
		return
	}
	rt.log.Infof("discovered gateways: %v", peers)
	rt.Config.Mesh.Peers = append(rt.Config.Mesh.Peers, peers...)
}

func (rt *Runtime) advertise() error {
	port := transport.DefaultPort
	if addr, ok := rt.Mesh.LocalAddr().(*net.UDPAddr); ok {
		port = addr.Port
	}

	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Port:          port,
		LoggerFactory: rt.LoggerFactory,
	})
	if err != nil {
		return err
	}

	mode := rt.Node.Mode()
	if mode.IsGateway() {
		err = adv.StartGateway(discovery.GatewayTXT{
			Name: rt.Node.Name(),
			Mode: mode,
			TTL:  uint8(rt.Config.Node.TTL),
		})
	} else {
		err = adv.StartNode(discovery.NodeTXT{Name: rt.Node.Name(), Mode: mode})
	}
	if err != nil {
		adv.Close()
		return err
	}
	rt.advertiser = adv
	return nil
}

// Run serves metrics, if enabled, and runs the node until ctx is done.
// Cancellation is not reported as an error.
func (rt *Runtime) Run(ctx context.Context) error {
	if rt.registry != nil {
		srv := rt.metricsServer()
		go func() {
			rt.log.Infof("serving metrics on %s%s", srv.Addr, rt.Config.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.log.Errorf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	err := rt.Node.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (rt *Runtime) metricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle(rt.Config.Metrics.Path, metrics.Handler(rt.registry))
	return &http.Server{
		Addr:              rt.Config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Close stops advertising and closes the node and its transport.
func (rt *Runtime) Close() error {
	if rt.advertiser != nil {
		rt.advertiser.Close()
	}
	if rt.Exporter != nil {
		rt.Exporter.Unregister()
	}
	if rt.Node != nil {
		if err := rt.Node.Close(); err != nil && !errors.Is(err, smqtt.ErrNodeClosed) {
			return err
		}
	}
	return nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
