package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/previewkit/previewkit/pkg/config"
)

// Probe checks whether a started service accepts connections. A nil error
// means ready.
type Probe interface {
	Check(ctx context.Context) error
}

// probeDialTimeout bounds a single probe attempt so a wedged service
// cannot stall the poll loop past its deadline.
const probeDialTimeout = 2 * time.Second

// NewProbe builds the probe described by spec. Environment references in
// the target are expanded first.
func NewProbe(spec config.ProbeSpec) (Probe, error) {
	target := os.ExpandEnv(spec.Target)
	switch spec.Kind {
	case "tcp":
		return &TCPProbe{Addr: target}, nil
	case "postgres":
		return &PostgresProbe{URL: target}, nil
	case "redis":
		return &RedisProbe{URL: target}, nil
	case "command":
		return &CommandProbe{Command: target}, nil
	default:
		return nil, fmt.Errorf("unknown probe kind %q", spec.Kind)
	}
}

// TCPProbe reports ready once the address accepts a TCP connection.
type TCPProbe struct {
	Addr string
}

// Check implements Probe.
func (p *TCPProbe) Check(ctx context.Context) error {
	dialer := net.Dialer{Timeout: probeDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.Addr, err)
	}
	return conn.Close()
}

// PostgresProbe reports ready once the database answers a ping over a
// fresh connection.
type PostgresProbe struct {
	URL string
}

// Check implements Probe.
func (p *PostgresProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeDialTimeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, p.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// RedisProbe reports ready once the cache answers PING.
type RedisProbe struct {
	URL string
}

// Check implements Probe.
func (p *RedisProbe) Check(ctx context.Context) error {
	opts, err := redis.ParseURL(p.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = probeDialTimeout

	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, probeDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// CommandProbe reports ready when the command exits zero, in the manner of
// pg_isready. The command runs through the shell.
type CommandProbe struct {
	Command string
}

// Check implements Probe.
func (p *CommandProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeDialTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", p.Command)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("probe command: %w", err)
	}
	return nil
}
