package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"macsleuth/internal/domain"
)

// DefaultNeighborCommand lists the IPv6 neighbor table on Linux routers
const DefaultNeighborCommand = "ip -6 neigh show"

// NeighborConfig describes how to reach the router holding the neighbor table
type NeighborConfig struct {
	Host string
	Port int
	User string
	// KeyFile is a private key path; takes precedence over PasswordEnv
	KeyFile string
	// Passphrase for an encrypted key, if any
	Passphrase string
	// PasswordEnv names the environment variable holding the SSH password
	PasswordEnv string
	Command     string
	Timeout     time.Duration
}

// NeighborProbe attaches IPv6 addresses from a router's neighbor table to
// observations. A randomized MAC keeps its SLAAC or stable-privacy suffix
// on many networks, which makes this the strongest correlation evidence.
type NeighborProbe struct {
	cfg NeighborConfig
	log zerolog.Logger
	// fetch returns the raw neighbor table; swapped in tests
	fetch func(ctx context.Context) (string, error)
}

// NewNeighborProbe creates a probe. Missing port, command and timeout fall
// back to 22, DefaultNeighborCommand and 10s.
func NewNeighborProbe(cfg NeighborConfig, log zerolog.Logger) *NeighborProbe {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Command == "" {
		cfg.Command = DefaultNeighborCommand
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	p := &NeighborProbe{
		cfg: cfg,
		log: log.With().Str("component", "neighbors").Str("host", cfg.Host).Logger(),
	}
	p.fetch = p.fetchOverSSH
	return p
}

// Name returns the enricher identifier
func (p *NeighborProbe) Name() string {
	return "ipv6-neighbors"
}

// Enrich reads the neighbor table and merges it into the observations
func (p *NeighborProbe) Enrich(ctx context.Context, observations []domain.Observation) ([]domain.Observation, error) {
	output, err := p.fetch(ctx)
	if err != nil {
		return observations, err
	}

	neighbors := parseNeighbors(output)
	p.log.Debug().Int("macs", len(neighbors)).Msg("Read IPv6 neighbor table")

	return EnrichObservations(observations, neighbors), nil
}

// EnrichObservations appends neighbor addresses to each matching observation,
// skipping addresses it already carries. The input slice is not modified.
func EnrichObservations(observations []domain.Observation, neighbors map[string][]string) []domain.Observation {
	out := make([]domain.Observation, len(observations))
	for i, obs := range observations {
		addrs := neighbors[domain.NormalizeMAC(obs.Identifier)]
		if len(addrs) == 0 {
			out[i] = obs
			continue
		}

		merged := append([]string(nil), obs.IPv6...)
		for _, addr := range addrs {
			if !containsString(merged, addr) {
				merged = append(merged, addr)
			}
		}
		obs.IPv6 = merged
		out[i] = obs
	}
	return out
}

// parseNeighbors reads `ip -6 neigh show` output:
//
//	fe80::1c2b:3aff:fe4d:5e6f dev br0 lladdr 1e:2b:3a:4d:5e:6f REACHABLE
//
// Entries without a link-layer address or in FAILED/INCOMPLETE state are
// skipped. Keys are normalized MACs.
func parseNeighbors(output string) map[string][]string {
	neighbors := make(map[string][]string)

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}

		state := fields[len(fields)-1]
		switch state {
		case "REACHABLE", "STALE", "DELAY", "PROBE", "PERMANENT":
		default:
			continue
		}

		addr := fields[0]
		if domain.IPv6Suffix(addr) == "" {
			continue
		}

		var mac string
		for i := 1; i < len(fields)-1; i++ {
			if fields[i] == "lladdr" {
				mac = domain.NormalizeMAC(fields[i+1])
				break
			}
		}
		if mac == "" {
			continue
		}

		if !containsString(neighbors[mac], addr) {
			neighbors[mac] = append(neighbors[mac], addr)
		}
	}

	return neighbors
}

func (p *NeighborProbe) fetchOverSSH(ctx context.Context) (string, error) {
	client, err := p.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	return p.runCommand(ctx, client, p.cfg.Command)
}

// connect establishes an SSH connection honouring ctx for the dial
func (p *NeighborProbe) connect(ctx context.Context) (*ssh.Client, error) {
	if p.cfg.Host == "" {
		return nil, errors.New("neighbor probe has no host")
	}

	config, err := p.buildSSHConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build SSH config: %w", err)
	}

	addr := net.JoinHostPort(p.cfg.Host, fmt.Sprint(p.cfg.Port))
	dialer := &net.Dialer{Timeout: p.cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// buildSSHConfig picks key auth when a key file is set, password otherwise
func (p *NeighborProbe) buildSSHConfig() (*ssh.ClientConfig, error) {
	if p.cfg.User == "" {
		return nil, errors.New("ssh user not configured")
	}

	var auth ssh.AuthMethod
	switch {
	case p.cfg.KeyFile != "":
		keyData, err := os.ReadFile(p.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if p.cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(p.cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = ssh.PublicKeys(signer)

	case p.cfg.PasswordEnv != "":
		password := os.Getenv(p.cfg.PasswordEnv)
		if password == "" {
			return nil, fmt.Errorf("password variable %s is empty", p.cfg.PasswordEnv)
		}
		auth = ssh.Password(password)

	default:
		return nil, errors.New("no ssh key file or password configured")
	}

	return &ssh.ClientConfig{
		User:            p.cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         p.cfg.Timeout,
	}, nil
}

// runCommand executes cmd and returns its output. A non-zero exit still
// returns whatever was printed.
func (p *NeighborProbe) runCommand(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)

	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	timer := time.NewTimer(p.cfg.Timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		var exitErr *ssh.ExitError
		if r.err != nil && !errors.As(r.err, &exitErr) {
			return "", fmt.Errorf("command failed: %w", r.err)
		}
		return string(r.output), nil
	case <-timer.C:
		session.Signal(ssh.SIGKILL)
		return "", errors.New("command timeout")
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
