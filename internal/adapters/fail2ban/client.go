// Package fail2ban drives fail2ban through fail2ban-client.
package fail2ban

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

const (
	DefaultBinary  = "fail2ban-client"
	DefaultJail    = "sshd"
	DefaultTimeout = 10 * time.Second
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

type Config struct {
	Binary  string
	Jail    string
	Timeout time.Duration
}

// Client implements ports.BanManager on top of fail2ban-client.
type Client struct {
	binary  string
	jail    string
	timeout time.Duration
	runner  Runner
}

var _ ports.BanManager = (*Client)(nil)

// NewClient returns a client using runner, or os/exec when runner is nil.
func NewClient(cfg Config, runner Runner) *Client {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Jail == "" {
		cfg.Jail = DefaultJail
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{binary: cfg.Binary, jail: cfg.Jail, timeout: cfg.Timeout, runner: runner}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.runner.Run(ctx, c.binary, args...)
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text != "" {
			return text, errors.Errorf(errors.KindUnknown, "%s %s: %v: %s", c.binary, strings.Join(args, " "), err, firstLine(text))
		}
		return text, errors.Errorf(errors.KindUnknown, "%s %s: %v", c.binary, strings.Join(args, " "), err)
	}
	if strings.Contains(text, "ERROR") {
		return text, errors.Errorf(errors.KindUnknown, "%s %s: %s", c.binary, strings.Join(args, " "), firstLine(text))
	}
	return text, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// CheckBanned reports whether ip appears in the jail's status output.
func (c *Client) CheckBanned(ctx context.Context, ip string) (bool, error) {
	out, err := c.run(ctx, "status", c.jail)
	if err != nil {
		return false, errors.Wrapf(err, errors.KindProbe, "probe %s", ip)
	}
	return containsAddress(out, ip), nil
}

// containsAddress matches ip as a whole token so 10.0.0.1 does not match
// 10.0.0.10.
func containsAddress(out, ip string) bool {
	for _, field := range strings.FieldsFunc(out, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '\r'
	}) {
		if field == ip {
			return true
		}
	}
	return false
}

func (c *Client) Ban(ctx context.Context, ip string) error {
	if _, err := c.run(ctx, "set", c.jail, "banip", ip); err != nil {
		return errors.Wrapf(err, errors.KindOrchestration, "ban %s", ip)
	}
	log.Info().Str("ip", ip).Str("jail", c.jail).Msg("IP banned")
	return nil
}

func (c *Client) Unban(ctx context.Context, ip string) error {
	if _, err := c.run(ctx, "set", c.jail, "unbanip", ip); err != nil {
		return errors.Wrapf(err, errors.KindOrchestration, "unban %s", ip)
	}
	log.Info().Str("ip", ip).Str("jail", c.jail).Msg("IP unbanned")
	return nil
}
