package ssh

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Client is the transports.Runner that executes tools on the controller
// host. Commands run in fresh SSH sessions over one shared connection;
// files are staged over SFTP.
type Client struct {
	config *Config
	logger zerolog.Logger

	mu     sync.Mutex
	client *ssh.Client
	sftp   *sftp.Client
}

// NewClient validates the config and returns an unconnected client. The
// first Run or WriteFile dials.
func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: config,
		logger: logger.With().Str("component", "ssh").Str("host", config.Host).Logger(),
	}, nil
}

// Connect dials the controller. Calling it on a live connection is a
// no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.client != nil {
		return nil
	}

	clientConfig, err := c.config.clientConfig()
	if err != nil {
		return err
	}

	c.logger.Debug().Str("address", c.config.Address()).Msg("dialing controller")

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", c.config.Address(), clientConfig)
		ch <- dialResult{client: client, err: err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("ssh: connect to %s: %w", c.config.Address(), ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("ssh: connect to %s: %w", c.config.Address(), r.err)
		}
		c.client = r.client
	}

	sftpClient, err := sftp.NewClient(c.client)
	if err != nil {
		_ = c.client.Close()
		c.client = nil
		return fmt.Errorf("ssh: open sftp channel: %w", err)
	}
	c.sftp = sftpClient
	return nil
}

// Close tears down the SFTP channel and the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Run implements transports.Runner. The command is executed through the
// login shell with every argument single-quoted.
func (c *Client) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	c.mu.Lock()
	if err := c.connectLocked(ctx); err != nil {
		c.mu.Unlock()
		return "", "", err
	}
	client := c.client
	c.mu.Unlock()

	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("ssh: open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmdline := commandLine(name, args)
	c.logger.Debug().Str("cmd", cmdline).Msg("running remote command")

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmdline)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return strings.TrimRight(stdout.String(), "\n"), strings.TrimRight(stderr.String(), "\n"), ctx.Err()
	case err := <-done:
		return strings.TrimRight(stdout.String(), "\n"), strings.TrimRight(stderr.String(), "\n"), err
	}
}

// WriteFile implements transports.Runner.
func (c *Client) WriteFile(ctx context.Context, remotePath string, data []byte) error {
	sftpClient, err := c.sftpClient(ctx)
	if err != nil {
		return err
	}

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return fmt.Errorf("ssh: mkdir %s: %w", dir, err)
		}
	}

	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("ssh: create %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("ssh: write %s: %w", remotePath, err)
	}
	return nil
}

// RemoveFile implements transports.Runner.
func (c *Client) RemoveFile(ctx context.Context, remotePath string) error {
	sftpClient, err := c.sftpClient(ctx)
	if err != nil {
		return err
	}
	if err := sftpClient.Remove(remotePath); err != nil && !isNotExist(err) {
		return fmt.Errorf("ssh: remove %s: %w", remotePath, err)
	}
	return nil
}

// TempDir implements transports.Runner.
func (c *Client) TempDir() string {
	return c.config.TempDir
}

func (c *Client) sftpClient(ctx context.Context) (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.sftp, nil
}

func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "does not exist") ||
		strings.Contains(err.Error(), "no such file")
}

// commandLine renders name and args as a shell command with POSIX
// single-quote escaping.
func commandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$&|;<>()*?[]#~%!{}`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
