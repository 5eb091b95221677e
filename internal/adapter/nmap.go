package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"

	"macsleuth/internal/domain"
)

// ErrNoTargets is returned when a scan is requested without targets
var ErrNoTargets = errors.New("no scan targets configured")

// NmapScanner discovers devices on the LAN with nmap. Only hosts whose MAC
// address nmap can see (same broadcast domain, usually as root) produce
// observations.
type NmapScanner struct {
	targets           []string
	timeout           time.Duration
	hostTimeout       time.Duration
	portRange         string
	osDetection       bool
	skipHostDiscovery bool
	log               zerolog.Logger
	now               func() time.Time
}

// NewNmapScanner creates a scanner for the given CIDR ranges or addresses
func NewNmapScanner(targets []string, log zerolog.Logger, opts ...NmapOption) *NmapScanner {
	s := &NmapScanner{
		targets:     targets,
		timeout:     5 * time.Minute,
		hostTimeout: 30 * time.Second,
		portRange:   "22,80,443,5353,7000,8009,49152-49154,62078",
		log:         log.With().Str("component", "nmap").Logger(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the source identifier
func (n *NmapScanner) Name() string {
	return "nmap"
}

// Observe scans every target and returns one observation per host with a MAC
func (n *NmapScanner) Observe(ctx context.Context) ([]domain.Observation, error) {
	targets, err := expandTargets(n.targets)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	opts := []nmap.Option{
		nmap.WithTargets(targets...),
		nmap.WithPorts(n.portRange),
	}
	if n.hostTimeout > 0 {
		opts = append(opts, nmap.WithHostTimeout(n.hostTimeout))
	}
	if n.osDetection {
		opts = append(opts, nmap.WithOSDetection())
	}
	if n.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	start := time.Now()
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		n.log.Warn().Strs("warnings", *warnings).Msg("Nmap reported warnings")
	}

	observations := observationsFromRun(result, n.now())
	n.log.Info().Int("hosts", len(result.Hosts)).Int("observations", len(observations)).
		Dur("took", time.Since(start)).Msg("Scan complete")

	return observations, nil
}

// observationsFromRun converts nmap results into observations. Hosts that are
// down or have no MAC address are skipped.
func observationsFromRun(result *nmap.Run, now time.Time) []domain.Observation {
	if result == nil {
		return nil
	}

	var observations []domain.Observation
	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}

		obs := domain.Observation{ObservedAt: now}
		for _, addr := range host.Addresses {
			switch addr.AddrType {
			case "mac":
				obs.Identifier = domain.NormalizeMAC(addr.Addr)
			case "ipv4":
				if obs.IP == "" {
					obs.IP = addr.Addr
				}
			case "ipv6":
				obs.IPv6 = append(obs.IPv6, addr.Addr)
			}
		}
		if obs.Identifier == "" {
			continue
		}

		if len(host.Hostnames) > 0 {
			obs.Hostname = host.Hostnames[0].Name
		}
		obs.OpenPorts = openPorts(host.Ports)
		obs.DeviceType = classifyDevice(osText(host.OS), obs.Hostname, obs.OpenPorts)

		observations = append(observations, obs)
	}

	return observations
}

// openPorts extracts list of open port numbers
func openPorts(ports []nmap.Port) []int {
	var open []int
	for _, port := range ports {
		if port.State.State == "open" {
			open = append(open, int(port.ID))
		}
	}
	return open
}

// osText flattens the best OS match into searchable text
func osText(os nmap.OS) string {
	if len(os.Matches) == 0 {
		return ""
	}

	match := os.Matches[0]
	parts := []string{match.Name}
	for _, class := range match.Classes {
		parts = append(parts, class.Vendor, class.Family, class.Type)
	}
	return strings.Join(parts, " ")
}

// expandTargets validates CIDR targets; nmap does the expansion itself
func expandTargets(targets []string) ([]string, error) {
	var expanded []string
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if strings.Contains(target, "/") {
			_, ipNet, err := net.ParseCIDR(target)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %s: %w", target, err)
			}
			expanded = append(expanded, ipNet.String())
		} else {
			expanded = append(expanded, target)
		}
	}
	return expanded, nil
}

// parsePorts validates a port specification in nmap format
func parsePorts(portRange string) (string, error) {
	parts := strings.Split(portRange, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return "", fmt.Errorf("invalid port range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil || start < 1 || start > 65535 {
				return "", fmt.Errorf("invalid port number: %s", rangeParts[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil || end < 1 || end > 65535 || end < start {
				return "", fmt.Errorf("invalid port number: %s", rangeParts[1])
			}
		} else {
			port, err := strconv.Atoi(part)
			if err != nil || port < 1 || port > 65535 {
				return "", fmt.Errorf("invalid port number: %s", part)
			}
		}
	}
	return portRange, nil
}
