package sshclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/core"
	"pkt.systems/spyglass/schema"
)

const defaultConnectTimeout = 10 * time.Second

// Config describes one outbound connection.
type Config struct {
	Host                  string
	Port                  int
	Username              string
	Signers               []ssh.Signer
	KnownHostsFile        string
	InsecureIgnoreHostKey bool
	ConnectTimeout        time.Duration
	KeepaliveInterval     time.Duration
	Logger                pslog.Logger
}

// Client is one authenticated SSH connection. The file browser and any
// shell session multiplex channels over it; when it dies both are lost
// together and Done is closed.
type Client struct {
	client *ssh.Client
	host   string
	port   int
	user   string
	log    pslog.Logger

	done chan struct{}
	stop chan struct{}

	mu      sync.Mutex
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

// Dial connects and authenticates against the remote. The context
// bounds the connection attempt only; the returned client lives until
// Close or transport failure.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("host is required")
	}
	if cfg.Username == "" {
		return nil, errors.New("username is required")
	}
	port := cfg.Port
	if port == 0 {
		port = schema.DefaultPort
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	log = log.With("remote", cfg.Username+"@"+addr)

	auth := authMethods(cfg.Signers, log)
	if len(auth) == 0 {
		return nil, fmt.Errorf("%w: no private key and no ssh agent", schema.ErrIdentityNotFound)
	}
	hostKeys, err := hostKeyCallback(cfg, log)
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	var client *ssh.Client
	var dialErr error
	dialDone := make(chan struct{})
	go func() {
		defer close(dialDone)
		client, dialErr = ssh.Dial("tcp", addr, clientCfg)
	}()

	select {
	case <-ctx.Done():
		go func() {
			<-dialDone
			if client != nil {
				_ = client.Close()
			}
		}()
		return nil, fmt.Errorf("connect %s: %w", addr, ctx.Err())
	case <-dialDone:
		if dialErr != nil {
			return nil, fmt.Errorf("connect %s: %w", addr, dialErr)
		}
	}

	c := &Client{
		client: client,
		host:   cfg.Host,
		port:   port,
		user:   cfg.Username,
		log:    log,
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go c.watch()
	if cfg.KeepaliveInterval > 0 {
		go c.keepalive(cfg.KeepaliveInterval)
	}
	log.Info("connected")
	return c, nil
}

// OpenChannel opens a fresh session channel on the connection.
func (c *Client) OpenChannel() (core.ShellChannel, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}
	return &shellChannel{session: session}, nil
}

// Done is closed once the underlying connection has died.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection died. Nil while it is alive.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitErr
}

// SSH exposes the raw connection for subsystem clients.
func (c *Client) SSH() *ssh.Client {
	return c.client
}

// Host returns the remote host.
func (c *Client) Host() string { return c.host }

// Port returns the remote port.
func (c *Client) Port() int { return c.port }

// User returns the authenticated username.
func (c *Client) User() string { return c.user }

// Address renders the connection as user@host:port.
func (c *Client) Address() string {
	return schema.Address(c.user, c.host, c.port)
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.closeErr = c.client.Close()
	})
	return c.closeErr
}

func (c *Client) watch() {
	err := c.client.Wait()
	c.mu.Lock()
	if err == nil {
		err = errors.New("connection closed")
	}
	c.waitErr = err
	c.mu.Unlock()
	close(c.done)
	c.log.Debug("ssh connection closed", "err", err)
}

func (c *Client) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			if _, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				c.log.Warn("keepalive failed", "err", err)
				_ = c.client.Close()
				return
			}
		}
	}
}
