package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPOptions configures an SFTP client.
type SFTPOptions struct {
	Host     string
	Port     int // 0 defaults to 22
	Username string
	Password string

	// HostKeyCallback verifies the server key. When nil the server key is
	// accepted without verification, matching the historical deployment;
	// production environments should pin the key via ssh.FixedHostKey.
	HostKeyCallback ssh.HostKeyCallback

	// DialTimeout bounds connection establishment. 0 defaults to 15s.
	DialTimeout time.Duration
}

// SFTPClient implements Client over a single lazily established SFTP
// connection. The connection is reused across calls and is not assumed safe
// for simultaneous use, so every operation holds the client mutex.
type SFTPClient struct {
	opts SFTPOptions

	mu   sync.Mutex
	conn *ssh.Client
	sftp *sftp.Client
}

// NewSFTP returns a client that connects on first use.
func NewSFTP(opts SFTPOptions) *SFTPClient {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 15 * time.Second
	}
	return &SFTPClient{opts: opts}
}

// ensure establishes the connection if needed. Callers must hold c.mu.
func (c *SFTPClient) ensure() (*sftp.Client, error) {
	if c.sftp != nil {
		return c.sftp, nil
	}

	hostKey := c.opts.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey() //nolint:gosec // see SFTPOptions.HostKeyCallback
	}
	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            c.opts.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(c.opts.Password)},
		HostKeyCallback: hostKey,
		Timeout:         c.opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", ErrTransport, addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: starting sftp subsystem on %s: %v", ErrTransport, addr, err)
	}

	c.conn = conn
	c.sftp = client
	return client, nil
}

// Upload copies localPath to remotePath. Any pre-existing remote file is
// removed first, so repeated uploads to the same path always succeed and
// leave the last upload's content.
func (c *SFTPClient) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.ensure()
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file %s: %w", localPath, err)
	}
	defer src.Close()

	if err := client.Remove(remotePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing existing remote file %s: %w", remotePath, err)
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("creating remote file %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("uploading %s: %w", remotePath, err)
	}
	return nil
}

// Download copies remotePath to localPath. A missing remote file fails with
// ErrNotFound before any local file is touched.
func (c *SFTPClient) Download(ctx context.Context, remotePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.ensure()
	if err != nil {
		return err
	}

	if _, err := client.Stat(remotePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, remotePath)
		}
		return fmt.Errorf("stat remote file %s: %w", remotePath, err)
	}

	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("opening remote file %s: %w", remotePath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating local file %s: %w", localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("downloading %s: %w", remotePath, err)
	}
	return nil
}

// Close disconnects the client. Safe to call on a never-connected client.
func (c *SFTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.sftp != nil {
		err = c.sftp.Close()
		c.sftp = nil
	}
	if c.conn != nil {
		if cerr := c.conn.Close(); err == nil {
			err = cerr
		}
		c.conn = nil
	}
	return err
}
