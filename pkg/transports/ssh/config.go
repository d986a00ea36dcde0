// Package ssh runs helm and kubectl on a remote controller host: commands
// over an SSH session, staged files over SFTP.
package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds the controller connection settings.
type Config struct {
	// Host is the controller hostname or IP.
	Host string

	// Port is the SSH port (default 22).
	Port int

	// User is the SSH login user.
	User string

	// PrivateKeyPath points at the key file. Empty falls back to
	// ~/.ssh/id_ed25519 then ~/.ssh/id_rsa.
	PrivateKeyPath string

	// PrivateKeyPassphrase decrypts an encrypted key.
	PrivateKeyPassphrase string

	// KnownHostsPath points at the known_hosts file used for host key
	// verification. Empty uses ~/.ssh/known_hosts.
	KnownHostsPath string

	// InsecureIgnoreHostKey disables host key verification. Test
	// environments only.
	InsecureIgnoreHostKey bool

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// TempDir is the remote scratch directory for staged files.
	TempDir string
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("ssh: host is required")
	}
	if c.User == "" {
		return fmt.Errorf("ssh: user is required")
	}
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("ssh: invalid port %d", c.Port)
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.TempDir == "" {
		c.TempDir = "/tmp"
	}
	return nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// clientConfig builds the x/crypto/ssh client configuration.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	signer, err := c.loadKey()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}

func (c *Config) loadKey() (ssh.Signer, error) {
	path := c.PrivateKeyPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("ssh: no key path and no home dir: %w", err)
		}
		for _, candidate := range []string{"id_ed25519", "id_rsa"} {
			p := filepath.Join(home, ".ssh", candidate)
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return nil, fmt.Errorf("ssh: no private key found under %s/.ssh", home)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ssh: read key %s: %w", path, err)
	}

	if c.PrivateKeyPassphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(raw, []byte(c.PrivateKeyPassphrase))
		if err != nil {
			return nil, fmt.Errorf("ssh: parse key %s: %w", path, err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("ssh: parse key %s: %w", path, err)
	}
	return signer, nil
}

func (c *Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := c.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("ssh: no known_hosts path and no home dir: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("ssh: load known_hosts %s: %w", path, err)
	}
	return callback, nil
}
