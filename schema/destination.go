package schema

import (
	"os"
	"strconv"
	"strings"
)

// DefaultPort is the SSH port used when a destination omits one.
const DefaultPort = 22

// ParseDestination splits a destination of the form [user@]host[:port].
// A missing user falls back to $USER (or root), a missing port to
// DefaultPort.
func ParseDestination(dest string) (username, host string, port int, err error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return "", "", 0, ErrInvalidDestination
	}
	userHost := dest
	port = DefaultPort
	if pos := strings.LastIndex(dest, ":"); pos >= 0 {
		parsed, perr := strconv.Atoi(dest[pos+1:])
		if perr != nil || parsed < 1 || parsed > 65535 {
			return "", "", 0, ErrInvalidDestination
		}
		userHost = dest[:pos]
		port = parsed
	}
	if pos := strings.Index(userHost, "@"); pos >= 0 {
		username = userHost[:pos]
		host = userHost[pos+1:]
	} else {
		username = os.Getenv("USER")
		if username == "" {
			username = "root"
		}
		host = userHost
	}
	if host == "" || username == "" {
		return "", "", 0, ErrInvalidDestination
	}
	return username, host, port, nil
}

// Address renders user@host:port.
func Address(username, host string, port int) string {
	return username + "@" + host + ":" + strconv.Itoa(port)
}
