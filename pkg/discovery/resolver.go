package discovery

import (
	"context"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// DefaultLookupTimeout is the default timeout for lookup operations.
const DefaultLookupTimeout = 5 * time.Second

// ResolvedService contains information about a discovered DNS-SD service.
type ResolvedService struct {
	// ServiceType is the type of the discovered service.
	ServiceType ServiceType

	// InstanceName is the DNS-SD instance name, the node's mesh name.
	InstanceName string

	// HostName is the target host name.
	HostName string

	// Port is the mesh UDP port.
	Port int

	// IPs contains the resolved IP addresses, sorted by preference.
	IPs []net.IP

	// Text contains the raw TXT record key-value pairs.
	Text map[string]string
}

// PreferredIP returns the most preferred IP address (first in the sorted list).
// Returns nil if no addresses are available.
func (r *ResolvedService) PreferredIP() net.IP {
	if len(r.IPs) > 0 {
		return r.IPs[0]
	}
	return nil
}

// PeerAddress returns "ip:port" for the preferred address, or "" when the
// service resolved no addresses.
func (r *ResolvedService) PeerAddress() string {
	ip := r.PreferredIP()
	if ip == nil {
		return ""
	}
	return PeerAddress(ip, r.Port)
}

// MDNSResolver is the interface for mDNS service resolution.
// Implementations send on entries until they are done or ctx ends and
// must not close it. This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

	// Lookup looks up a specific service instance.
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return forwardEntries(ctx, entries, func(in chan<- *zeroconf.ServiceEntry) error {
		return z.resolver.Browse(ctx, service, domain, in)
	})
}

func (z *zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return forwardEntries(ctx, entries, func(in chan<- *zeroconf.ServiceEntry) error {
		return z.resolver.Lookup(ctx, instance, service, domain, in)
	})
}

// forwardEntries copies entries from a channel owned by zeroconf, which
// closes it itself, to out until ctx is done. out is never closed here.
func forwardEntries(ctx context.Context, out chan<- *zeroconf.ServiceEntry, start func(chan<- *zeroconf.ServiceEntry) error) error {
	in := make(chan *zeroconf.ServiceEntry)
	if err := start(in); err != nil {
		return err
	}
	for {
		select {
		case e, ok := <-in:
			if !ok {
				return ctx.Err()
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout is the timeout for browse operations.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the timeout for lookup operations.
	// If zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Resolver discovers mesh gateways and nodes via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	r := &Resolver{
		config:   config,
		resolver: resolver,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// BrowseGateways discovers gateways on the network.
// Returns a channel that receives discovered services until the context is
// cancelled or the browse timeout expires.
func (r *Resolver) BrowseGateways(ctx context.Context) (<-chan ResolvedService, error) {
	return r.browse(ctx, ServiceTypeGateway)
}

// BrowseNodes discovers standard nodes on the network.
func (r *Resolver) BrowseNodes(ctx context.Context) (<-chan ResolvedService, error) {
	return r.browse(ctx, ServiceTypeNode)
}

func (r *Resolver) browse(ctx context.Context, serviceType ServiceType) (<-chan ResolvedService, error) {
	if !serviceType.IsValid() {
		return nil, ErrInvalidServiceType
	}
	service := serviceType.ServiceString()

	results := make(chan ResolvedService)
	entries := make(chan *zeroconf.ServiceEntry)

	// The browse owns its timeout so that it outlives this call.
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); ok {
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
	}

	go func() {
		defer close(results)
		defer cancel()

		go func() {
			defer close(entries)
			if err := r.resolver.Browse(ctx, service, DefaultDomain, entries); err != nil && r.log != nil {
				r.log.Debugf("browse %s: %v", service, err)
			}
		}()

		for entry := range entries {
			svc := entryToResolvedService(entry, serviceType)
			select {
			case results <- svc:
			case <-ctx.Done():
				// Drain so the browse goroutine can exit.
				for range entries {
				}
				return
			}
		}
	}()

	return results, nil
}

// LookupGateway looks up a gateway by its mesh name.
func (r *Resolver) LookupGateway(ctx context.Context, name string) (*ResolvedService, error) {
	return r.Lookup(ctx, ServiceTypeGateway, name)
}

// Lookup looks up a specific service instance by name.
func (r *Resolver) Lookup(ctx context.Context, serviceType ServiceType, instanceName string) (*ResolvedService, error) {
	if !serviceType.IsValid() {
		return nil, ErrInvalidServiceType
	}
	service := serviceType.ServiceString()

	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); ok {
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, r.config.LookupTimeout)
	}
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 1)

	go func() {
		defer close(entries)
		r.resolver.Lookup(ctx, instanceName, service, DefaultDomain, entries)
	}()

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return nil, ErrServiceNotFound
		}
		svc := entryToResolvedService(entry, serviceType)
		return &svc, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// DiscoverGatewayPeers browses for gateways until ctx ends or the browse
// timeout expires and returns one "ip:port" peer per gateway found.
// Entries whose TXT records do not describe a valid gateway are skipped.
func (r *Resolver) DiscoverGatewayPeers(ctx context.Context) ([]string, error) {
	services, err := r.BrowseGateways(ctx)
	if err != nil {
		return nil, err
	}

	var peers []string
	seen := make(map[string]bool)
	for svc := range services {
		if _, err := ParseGatewayTXT(mapToRecords(svc.Text)); err != nil {
			if r.log != nil {
				r.log.Debugf("skipping gateway %q: %v", svc.InstanceName, err)
			}
			continue
		}
		addr := svc.PeerAddress()
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		peers = append(peers, addr)
	}

	if len(peers) == 0 {
		return nil, ErrServiceNotFound
	}
	return peers, nil
}

// entryToResolvedService converts a zeroconf.ServiceEntry to ResolvedService.
func entryToResolvedService(entry *zeroconf.ServiceEntry, serviceType ServiceType) ResolvedService {
	var allIPs []net.IP
	allIPs = append(allIPs, entry.AddrIPv4...)
	allIPs = append(allIPs, entry.AddrIPv6...)

	return ResolvedService{
		ServiceType:  serviceType,
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          SortIPsByPreference(allIPs),
		Text:         ParseTXT(entry.Text),
	}
}

func mapToRecords(m map[string]string) []string {
	records := make([]string, 0, len(m))
	for k, v := range m {
		records = append(records, k+"="+v)
	}
	return records
}
