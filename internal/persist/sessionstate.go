package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/schema"
)

// SessionStateStore persists per-connection browser state so a
// reconnect lands in the directory the user left.
type SessionStateStore struct {
	dir string
	log pslog.Logger
}

// NewSessionStateStore constructs a session state store at dir.
func NewSessionStateStore(dir string) (*SessionStateStore, error) {
	return NewSessionStateStoreWithLogger(dir, nil)
}

// NewSessionStateStoreWithLogger constructs a session state store with logging.
func NewSessionStateStoreWithLogger(dir string, logger pslog.Logger) (*SessionStateStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &SessionStateStore{dir: dir, log: logger}, nil
}

// Load reads the state saved for the given remote.
func (s *SessionStateStore) Load(username, host string, port int) (schema.SessionState, bool, error) {
	path := s.pathFor(username, host, port)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("session state miss", "remote", schema.Address(username, host, port))
			}
			return schema.SessionState{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("session state load failed", "err", err)
		}
		return schema.SessionState{}, false, err
	}
	var state schema.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		if s.log != nil {
			s.log.Warn("session state load failed", "err", err)
		}
		return schema.SessionState{}, false, err
	}
	if s.log != nil {
		s.log.Debug("session state loaded", "remote", schema.Address(username, host, port), "path", state.CurrentPath)
	}
	return state, true, nil
}

// Save writes the state for the given remote.
func (s *SessionStateStore) Save(state schema.SessionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	path := s.pathFor(state.Username, state.Host, state.Port)
	if err := writeFileAtomic(path, data); err != nil {
		if s.log != nil {
			s.log.Warn("session state save failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("session state saved", "remote", schema.Address(state.Username, state.Host, state.Port), "path", state.CurrentPath)
	}
	return nil
}

func (s *SessionStateStore) pathFor(username, host string, port int) string {
	name := sanitize(fmt.Sprintf("%s@%s_%d", username, host, port))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, "session_"+name+".json")
}
