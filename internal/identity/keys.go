package identity

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/ssh"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"

	"pkt.systems/spyglass/schema"
)

const (
	// KeyTypeEd25519 requests Ed25519 key generation.
	KeyTypeEd25519 = "ed25519"
	// KeyTypeRSA requests RSA key generation.
	KeyTypeRSA = "rsa"
	// DefaultRSABits is the default RSA key size in bits.
	DefaultRSABits   = 3072
	defaultKeyFile   = "key.enc"
	defaultPubFile   = "key.pub"
	descriptorPrefix = "spyglass:identity:"
)

// Identity is a named private key held in the vault.
type Identity struct {
	Name      string
	PublicKey string
}

// Store holds client private keys encrypted at rest. Keys enter the
// vault by import or generation and leave only as ssh.Signers handed
// to the dialer.
type Store struct {
	storePath string
	keyDir    string
	log       pslog.Logger
}

// NewStore initializes the vault and ensures the root key exists.
func NewStore(storePath, keyDir string) (*Store, error) {
	return NewStoreWithLogger(storePath, keyDir, nil)
}

// NewStoreWithLogger initializes the vault with logging.
func NewStoreWithLogger(storePath, keyDir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(storePath) == "" {
		return nil, fmt.Errorf("identity store path is required")
	}
	if strings.TrimSpace(keyDir) == "" {
		return nil, fmt.Errorf("identity key directory is required")
	}
	if err := EnsureKeyStoreWithLogger(storePath, logger); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("identity_store", storePath)
	}
	return &Store{storePath: storePath, keyDir: keyDir, log: logger}, nil
}

// Import encrypts an existing private key file's contents under the
// given name. The key must parse as an unencrypted SSH private key.
func (s *Store) Import(name string, pemData []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("identity name is required")
	}
	raw, err := ssh.ParseRawPrivateKey(pemData)
	if err != nil {
		if s.log != nil {
			s.log.Warn("identity import failed", "name", name, "err", err)
		}
		return "", fmt.Errorf("parse private key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(raw)
	if err != nil {
		if s.log != nil {
			s.log.Warn("identity import failed", "name", name, "err", err)
		}
		return "", err
	}
	pub := ssh.MarshalAuthorizedKey(signer.PublicKey())
	if err := s.sealKey(name, pemData, pub, false); err != nil {
		return "", err
	}
	if s.log != nil {
		s.log.Info("identity imported", "name", name, "type", signer.PublicKey().Type())
	}
	return strings.TrimSpace(string(pub)), nil
}

// Generate creates a new private key under the given name.
func (s *Store) Generate(name, keyType string, bits int) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("identity name is required")
	}
	keyType = strings.ToLower(strings.TrimSpace(keyType))
	if keyType == "" {
		keyType = KeyTypeEd25519
	}
	var priv crypto.PrivateKey
	switch keyType {
	case KeyTypeEd25519:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", err
		}
		priv = key
	case KeyTypeRSA:
		if bits == 0 {
			bits = DefaultRSABits
		}
		if bits < 2048 {
			return "", fmt.Errorf("rsa bits must be at least 2048")
		}
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return "", err
		}
		priv = key
	default:
		return "", fmt.Errorf("unsupported key type %q", keyType)
	}

	block, err := ssh.MarshalPrivateKey(priv, name)
	if err != nil {
		if s.log != nil {
			s.log.Warn("identity generate failed", "name", name, "err", err)
		}
		return "", err
	}
	plain := pem.EncodeToMemory(block)
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return "", err
	}
	pub := ssh.MarshalAuthorizedKey(signer.PublicKey())
	if err := s.sealKey(name, plain, pub, false); err != nil {
		return "", err
	}
	if s.log != nil {
		s.log.Info("identity generated", "name", name, "type", keyType)
	}
	return strings.TrimSpace(string(pub)), nil
}

// List returns all identities with their public keys, sorted by name.
func (s *Store) List() ([]Identity, error) {
	entries, err := os.ReadDir(s.keyDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	identities := make([]Identity, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pub, err := s.LoadPublicKey(entry.Name())
		if err != nil {
			if s.log != nil {
				s.log.Warn("identity unreadable", "name", entry.Name(), "err", err)
			}
			continue
		}
		identities = append(identities, Identity{Name: entry.Name(), PublicKey: pub})
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i].Name < identities[j].Name })
	return identities, nil
}

// Remove deletes the identity's key material.
func (s *Store) Remove(name string) error {
	dir := s.identityDir(name)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", schema.ErrIdentityNotFound, name)
		}
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		if s.log != nil {
			s.log.Warn("identity remove failed", "name", name, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("identity removed", "name", name)
	}
	return nil
}

// LoadSigner decrypts the identity's private key as an ssh.Signer.
func (s *Store) LoadSigner(name string) (ssh.Signer, error) {
	priv, err := s.loadPrivateKey(name)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(priv)
}

// LoadPublicKey returns the stored public key line.
func (s *Store) LoadPublicKey(name string) (string, error) {
	data, err := os.ReadFile(s.publicKeyPath(name))
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	signer, err := s.LoadSigner(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))), nil
}

func (s *Store) loadPrivateKey(name string) (crypto.PrivateKey, error) {
	path := s.privateKeyPath(name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", schema.ErrIdentityNotFound, name)
		}
		return nil, err
	}
	material, root, err := s.materialFor(name, false)
	if err != nil {
		if s.log != nil {
			s.log.Warn("identity load failed", "name", name, "err", err)
		}
		return nil, err
	}
	kg := kryptograf.New(root)
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	reader, err := kg.DecryptReader(file, material)
	if err != nil {
		if s.log != nil {
			s.log.Warn("identity load failed", "name", name, "err", err)
		}
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	priv, err := ssh.ParseRawPrivateKey(plain)
	if err != nil {
		if s.log != nil {
			s.log.Warn("identity load failed", "name", name, "err", err)
		}
		return nil, err
	}
	if s.log != nil {
		s.log.Debug("identity loaded", "name", name)
	}
	return priv, nil
}

func (s *Store) sealKey(name string, plain, pub []byte, rotate bool) error {
	material, root, err := s.materialFor(name, rotate)
	if err != nil {
		if s.log != nil {
			s.log.Warn("identity seal failed", "name", name, "err", err)
		}
		return err
	}
	kg := kryptograf.New(root)

	dir := s.identityDir(name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "key-*.enc")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	writer, err := kg.EncryptWriter(tmp, material)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		if s.log != nil {
			s.log.Warn("identity seal failed", "name", name, "err", err)
		}
		return err
	}
	if _, err := io.Copy(writer, bytes.NewReader(plain)); err != nil {
		_ = writer.Close()
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := writer.Close(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	_ = tmp.Close()
	if err := os.Rename(tmpPath, s.privateKeyPath(name)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.WriteFile(s.publicKeyPath(name), pub, 0o644); err != nil {
		if s.log != nil {
			s.log.Warn("identity seal failed", "name", name, "err", err)
		}
		return err
	}
	return nil
}

func (s *Store) materialFor(name string, rotate bool) (keymgmt.Material, keymgmt.RootKey, error) {
	store, err := keymgmt.LoadProto(s.storePath)
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	descName := descriptorPrefix + name
	contextBytes := []byte(descName)
	var material keymgmt.Material
	if rotate {
		material, err = keymgmt.MintDEK(root, contextBytes)
		if err != nil {
			return keymgmt.Material{}, keymgmt.RootKey{}, err
		}
		if err := store.SetDescriptor(descName, material.Descriptor); err != nil {
			return keymgmt.Material{}, keymgmt.RootKey{}, err
		}
	} else {
		material, err = store.EnsureDescriptor(descName, root, contextBytes)
		if err != nil {
			return keymgmt.Material{}, keymgmt.RootKey{}, err
		}
	}
	if err := store.Commit(); err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	return material, root, nil
}

func (s *Store) identityDir(name string) string {
	return filepath.Join(s.keyDir, name)
}

func (s *Store) privateKeyPath(name string) string {
	return filepath.Join(s.identityDir(name), defaultKeyFile)
}

func (s *Store) publicKeyPath(name string) string {
	return filepath.Join(s.identityDir(name), defaultPubFile)
}
