package sshclient

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"pkt.systems/pslog"
)

// authMethods builds the client auth chain. Explicit signers come
// first, then any keys held by a running ssh-agent.
func authMethods(signers []ssh.Signer, log pslog.Logger) []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			log.Warn("ssh agent unreachable", "socket", sock, "error", err)
		} else {
			ac := agent.NewClient(conn)
			methods = append(methods, ssh.PublicKeysCallback(ac.Signers))
			log.Debug("ssh agent added to auth chain", "socket", sock)
		}
	}
	return methods
}

// LoadSignerFromFile parses an unencrypted private key in PEM form,
// such as one written by ssh-keygen.
func LoadSignerFromFile(path string) (ssh.Signer, error) {
	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return signer, nil
}
