package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SSHConfig struct {
	Host                    string `mapstructure:"host" json:"host,omitempty"`
	Port                    int    `mapstructure:"port" json:"port,omitempty"`
	Username                string `mapstructure:"username" json:"username,omitempty"`
	PrivateKey              string `mapstructure:"private_key" json:"private_key,omitempty"`
	Passphrase              string `mapstructure:"passphrase" json:"passphrase,omitempty"`
	Password                string `mapstructure:"password" json:"password,omitempty"`
	HostKeyVerificationMode string `mapstructure:"host_key_verification_mode" json:"host_key_verification_mode,omitempty"`
	KnownHostsFilePath      string `mapstructure:"known_hosts_file_path" json:"known_hosts_file_path,omitempty"`
}

const (
	StrictHostKeyVerification   = "strict"
	InsecureHostKeyVerification = "insecure"
)

func (c *SSHConfig) Validate() error {
	if c.Host == "" {
		return errors.New("ssh host is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("invalid ssh port number: must be between 1 and 65535")
	}

	if c.Username == "" {
		return errors.New("ssh username is required")
	}

	if c.PrivateKey == "" && c.Password == "" {
		return errors.New("private key or password is required")
	}

	if c.HostKeyVerificationMode == StrictHostKeyVerification && c.KnownHostsFilePath == "" {
		return errors.New("known_hosts file path is required for strict verification")
	}

	if c.HostKeyVerificationMode == "" {
		c.HostKeyVerificationMode = InsecureHostKeyVerification
	}

	return nil
}

func (c *SSHConfig) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch c.HostKeyVerificationMode {
	case InsecureHostKeyVerification:
		return ssh.InsecureIgnoreHostKey(), nil // #nosec G106
	case StrictHostKeyVerification:
		if err := CheckIfFilesExists(c.KnownHostsFilePath); err != nil {
			return nil, fmt.Errorf("known_hosts file validation failed: %w", err)
		}
		callback, err := knownhosts.New(c.KnownHostsFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts file: %w", err)
		}
		return callback, nil
	default:
		return nil, fmt.Errorf("unknown host key verification strategy: %s", c.HostKeyVerificationMode)
	}
}

// SSHTunnel forwards database connections through a bastion host.
type SSHTunnel struct {
	client *ssh.Client
}

// OpenTunnel dials the bastion described by c.
func (c *SSHConfig) OpenTunnel() (*SSHTunnel, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate ssh config: %s", err)
	}

	var authMethods []ssh.AuthMethod
	if c.Password != "" {
		authMethods = append(authMethods, ssh.Password(c.Password))
	}
	if c.PrivateKey != "" {
		signer, err := ParsePrivateKey(c.PrivateKey, c.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH private key: %s", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	callback, err := c.hostKeyCallback()
	if err != nil {
		return nil, fmt.Errorf("failed to get host key callback: %s", err)
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), &ssh.ClientConfig{
		User:            c.Username,
		Auth:            authMethods,
		HostKeyCallback: callback,
		Timeout:         30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh dial bastion: %s", err)
	}

	return &SSHTunnel{client: client}, nil
}

// DialContext matches the dialer signature of both pgx and go-sql-driver/mysql.
// crypto/ssh has no context support, so ctx is only checked before dialing.
func (t *SSHTunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if network == "" {
		network = "tcp"
	}
	return t.client.Dial(network, addr)
}

func (t *SSHTunnel) Close() error {
	return t.client.Close()
}

// ParsePrivateKey parses a private key from a PEM string
func ParsePrivateKey(pemText, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase([]byte(pemText), []byte(passphrase))
	}

	signer, err := ssh.ParsePrivateKey([]byte(pemText))
	if err == nil {
		return signer, nil
	}
	if _, ok := err.(*ssh.PassphraseMissingError); ok {
		return nil, fmt.Errorf("SSH private key appears encrypted, enter the passphrase")
	}
	return nil, err
}
