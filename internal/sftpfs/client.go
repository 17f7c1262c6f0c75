// Package sftpfs drives remote file operations over the SFTP subsystem
// of an established SSH connection. The file browser holds exactly one
// of these per connection; shell sessions run on separate channels and
// never touch it.
package sftpfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/schema"
)

// Client wraps an SFTP subsystem channel.
type Client struct {
	sftp *sftp.Client
	log  pslog.Logger
}

// New opens the SFTP subsystem on conn.
func New(conn *ssh.Client) (*Client, error) {
	return NewWithLogger(conn, nil)
}

// NewWithLogger opens the SFTP subsystem on conn with an explicit logger.
func NewWithLogger(conn *ssh.Client, log pslog.Logger) (*Client, error) {
	if conn == nil {
		return nil, errors.New("ssh connection is required")
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("open sftp subsystem: %w", err)
	}
	return &Client{sftp: client, log: log}, nil
}

// ReadDir lists a remote directory sorted by name. Presentation order
// (directories first) is the browser's concern.
func (c *Client) ReadDir(path string) ([]schema.FileEntry, error) {
	infos, err := c.sftp.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}
	entries := make([]schema.FileEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, schema.FileEntry{
			Name:  info.Name(),
			Size:  info.Size(),
			Mode:  info.Mode().String(),
			IsDir: info.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Download copies a remote file to localPath, replacing any existing
// file. A failed copy removes the partial local file.
func (c *Client) Download(remotePath, localPath string) (int64, error) {
	src, err := c.sftp.Open(remotePath)
	if err != nil {
		return 0, fmt.Errorf("open remote file %s: %w", remotePath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create local file %s: %w", localPath, err)
	}

	n, err := io.Copy(dst, src)
	if err != nil {
		_ = dst.Close()
		_ = os.Remove(localPath)
		return 0, fmt.Errorf("download %s: %w", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return 0, fmt.Errorf("close local file %s: %w", localPath, err)
	}
	c.log.Debug("downloaded file", "remote", remotePath, "local", localPath, "bytes", n)
	return n, nil
}

// Upload copies a local file to remotePath, replacing any existing
// remote file.
func (c *Client) Upload(localPath, remotePath string) (int64, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("open local file %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := c.sftp.Create(remotePath)
	if err != nil {
		return 0, fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		_ = dst.Close()
		return 0, fmt.Errorf("upload %s: %w", localPath, err)
	}
	if err := dst.Close(); err != nil {
		return 0, fmt.Errorf("close remote file %s: %w", remotePath, err)
	}
	c.log.Debug("uploaded file", "local", localPath, "remote", remotePath, "bytes", n)
	return n, nil
}

// Mkdir creates a remote directory.
func (c *Client) Mkdir(path string) error {
	if err := c.sftp.Mkdir(path); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	c.log.Debug("created remote dir", "path", path)
	return nil
}

// Rename moves a remote file or directory.
func (c *Client) Rename(oldPath, newPath string) error {
	if err := c.sftp.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
	c.log.Debug("renamed remote entry", "from", oldPath, "to", newPath)
	return nil
}

// Remove deletes a remote file, or a directory when it is empty.
func (c *Client) Remove(path string, isDir bool) error {
	if isDir {
		if err := c.sftp.RemoveDirectory(path); err != nil {
			return fmt.Errorf("remove dir %s: %w", path, err)
		}
	} else {
		if err := c.sftp.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	c.log.Debug("removed remote entry", "path", path, "dir", isDir)
	return nil
}

// Close shuts the subsystem channel down.
func (c *Client) Close() error {
	return c.sftp.Close()
}
