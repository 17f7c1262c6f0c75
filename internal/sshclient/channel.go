package sshclient

import (
	"errors"
	"io"

	"golang.org/x/crypto/ssh"
)

// shellChannel adapts an ssh.Session to the channel shape the shell
// controller drives.
type shellChannel struct {
	session *ssh.Session
}

func (c *shellChannel) RequestPty(termType string, rows, cols int) error {
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	return c.session.RequestPty(termType, rows, cols, modes)
}

func (c *shellChannel) StdinPipe() (io.WriteCloser, error) {
	return c.session.StdinPipe()
}

func (c *shellChannel) StdoutPipe() (io.Reader, error) {
	return c.session.StdoutPipe()
}

func (c *shellChannel) Start(command string) error {
	return c.session.Start(command)
}

func (c *shellChannel) WindowChange(rows, cols int) error {
	return c.session.WindowChange(rows, cols)
}

func (c *shellChannel) Close() error {
	err := c.session.Close()
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
