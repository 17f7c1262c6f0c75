package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/schema"
)

type connectionFile struct {
	Connections []schema.SavedConnection `json:"connections"`
}

// ConnectionStore persists named connection profiles to disk.
type ConnectionStore struct {
	path string
	log  pslog.Logger
}

// NewConnectionStore constructs a connection store under dir.
func NewConnectionStore(dir string) (*ConnectionStore, error) {
	return NewConnectionStoreWithLogger(dir, nil)
}

// NewConnectionStoreWithLogger constructs a connection store with logging.
func NewConnectionStoreWithLogger(dir string, logger pslog.Logger) (*ConnectionStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &ConnectionStore{path: filepath.Join(dir, "connections.json"), log: logger}, nil
}

// List returns all saved connections sorted by name.
func (s *ConnectionStore) List() ([]schema.SavedConnection, error) {
	file, err := s.read()
	if err != nil {
		return nil, err
	}
	sort.Slice(file.Connections, func(i, j int) bool {
		return file.Connections[i].Name < file.Connections[j].Name
	})
	return file.Connections, nil
}

// Get returns the saved connection with the given name.
func (s *ConnectionStore) Get(name string) (schema.SavedConnection, error) {
	file, err := s.read()
	if err != nil {
		return schema.SavedConnection{}, err
	}
	for _, conn := range file.Connections {
		if conn.Name == name {
			return conn, nil
		}
	}
	return schema.SavedConnection{}, fmt.Errorf("%w: %s", schema.ErrConnectionNotFound, name)
}

// Upsert adds or replaces a connection by name.
func (s *ConnectionStore) Upsert(conn schema.SavedConnection) error {
	if strings.TrimSpace(conn.Name) == "" {
		return errors.New("connection name is required")
	}
	file, err := s.read()
	if err != nil {
		return err
	}
	replaced := false
	for i := range file.Connections {
		if file.Connections[i].Name == conn.Name {
			file.Connections[i] = conn
			replaced = true
			break
		}
	}
	if !replaced {
		file.Connections = append(file.Connections, conn)
	}
	if err := s.write(file); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Debug("connection saved", "name", conn.Name, "remote", conn.DisplayName(), "replaced", replaced)
	}
	return nil
}

// Remove deletes a connection by name.
func (s *ConnectionStore) Remove(name string) error {
	file, err := s.read()
	if err != nil {
		return err
	}
	kept := file.Connections[:0]
	found := false
	for _, conn := range file.Connections {
		if conn.Name == name {
			found = true
			continue
		}
		kept = append(kept, conn)
	}
	if !found {
		return fmt.Errorf("%w: %s", schema.ErrConnectionNotFound, name)
	}
	file.Connections = kept
	if err := s.write(file); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Debug("connection removed", "name", name)
	}
	return nil
}

func (s *ConnectionStore) read() (connectionFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return connectionFile{}, nil
		}
		if s.log != nil {
			s.log.Warn("connections load failed", "err", err)
		}
		return connectionFile{}, err
	}
	var file connectionFile
	if err := json.Unmarshal(data, &file); err != nil {
		if s.log != nil {
			s.log.Warn("connections load failed", "err", err)
		}
		return connectionFile{}, err
	}
	return file, nil
}

func (s *ConnectionStore) write(file connectionFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		if s.log != nil {
			s.log.Warn("connections save failed", "err", err)
		}
		return err
	}
	return nil
}
