// Package tokenfile persists the API access token between runs. The token is
// sealed with XChaCha20-Poly1305 under a key derived from the configured cache
// secret, so the file on disk is an opaque blob readable only with that
// secret. Anything that fails to open or does not match the current client and
// scope is reported as a cache miss, never as a fatal error.
package tokenfile

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the cache directory.
const DirPerms = 0o700

// BlobVersion is the first byte of every sealed blob. It is part of the
// associated data, so a flipped version byte fails authentication.
const BlobVersion byte = 0x01

// blobOverhead is version + nonce + Poly1305 tag.
const blobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfo separates the cache key from any other use of the same secret.
var hkdfInfo = []byte("axm-go token cache v1")

// Sentinel errors. Callers of Cache never see ErrOpen; it is converted to a
// miss. It is exported for Sealer users.
var (
	ErrNoSecret = errors.New("tokenfile: cache secret is empty")
	ErrOpen     = errors.New("tokenfile: cannot open sealed token")
)

// Entry is the plaintext cached for one token.
type Entry struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ClientID    string    `json:"client_id"`
	Scope       string    `json:"scope"`
}

// Storage is the backend holding the sealed blob.
type Storage interface {
	// Read returns the stored blob, or (nil, nil) if nothing is stored.
	Read() ([]byte, error)
	Write(data []byte) error
	// Remove deletes the stored blob. Removing an absent blob is not an error.
	Remove() error
}

// Sealer encrypts and decrypts cache entries.
type Sealer struct {
	key [chacha20poly1305.KeySize]byte
}

// NewSealer derives the cache key from secret with HKDF-SHA256. Any non-empty
// secret works, including a Fernet key carried over from older tooling.
func NewSealer(secret string) (*Sealer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrNoSecret
	}

	s := &Sealer{}

	r := hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo)
	if _, err := io.ReadFull(r, s.key[:]); err != nil {
		return nil, fmt.Errorf("tokenfile: deriving cache key: %w", err)
	}

	return s, nil
}

// Seal encodes and encrypts e. The output layout is
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext+tag]
func (s *Sealer) Seal(e Entry) ([]byte, error) {
	plaintext, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("tokenfile: encoding: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, fmt.Errorf("tokenfile: creating cipher: %w", err)
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, blobOverhead+len(plaintext))
	out[0] = BlobVersion

	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, fmt.Errorf("tokenfile: generating nonce: %w", err)
	}

	nonce := out[1 : 1+chacha20poly1305.NonceSizeX]

	return aead.Seal(out, nonce, plaintext, associatedData(BlobVersion, e.ClientID, e.Scope)), nil
}

// Open decrypts a blob sealed for clientID and scope. Any failure (short
// blob, unknown version, wrong key, tampering, other client or scope) wraps
// ErrOpen.
func (s *Sealer) Open(blob []byte, clientID, scope string) (Entry, error) {
	if len(blob) < blobOverhead {
		return Entry{}, fmt.Errorf("%w: blob is %d bytes, minimum is %d", ErrOpen, len(blob), blobOverhead)
	}

	if blob[0] != BlobVersion {
		return Entry{}, fmt.Errorf("%w: unsupported version %d", ErrOpen, blob[0])
	}

	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return Entry{}, fmt.Errorf("tokenfile: creating cipher: %w", err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData(blob[0], clientID, scope))
	if err != nil {
		return Entry{}, fmt.Errorf("%w: authentication failed", ErrOpen)
	}

	var e Entry
	if err := json.Unmarshal(plaintext, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: decoding: %v", ErrOpen, err)
	}

	if e.ClientID != clientID || e.Scope != scope {
		return Entry{}, fmt.Errorf("%w: entry issued for another client or scope", ErrOpen)
	}

	return e, nil
}

func associatedData(version byte, clientID, scope string) []byte {
	aad := make([]byte, 0, 2+len(clientID)+len(scope))
	aad = append(aad, version)
	aad = append(aad, clientID...)
	aad = append(aad, '|')
	aad = append(aad, scope...)

	return aad
}

// FileStorage stores the blob in a single file.
type FileStorage struct {
	Path string
}

// Read returns (nil, nil) if the file does not exist.
func (f FileStorage) Read() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", f.Path, err)
	}

	return data, nil
}

// Write replaces the file atomically (write-to-temp + rename) with 0600
// permissions.
func (f FileStorage) Write(data []byte) error {
	dir := filepath.Dir(f.Path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, f.Path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the file. A missing file is not an error.
func (f FileStorage) Remove() error {
	err := os.Remove(f.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", f.Path, err)
	}

	return nil
}

// MemoryStorage keeps the blob in memory. Used by tests and by callers that
// opt out of persistence.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

// Read returns a copy of the stored blob.
func (m *MemoryStorage) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return nil, nil
	}

	return append([]byte(nil), m.data...), nil
}

// Write stores a copy of data.
func (m *MemoryStorage) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = append([]byte(nil), data...)

	return nil
}

// Remove clears the stored blob.
func (m *MemoryStorage) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil

	return nil
}
