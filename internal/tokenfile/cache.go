package tokenfile

import (
	"fmt"
	"log/slog"
)

// Cache binds a Sealer to a Storage backend. Load reports misses instead of
// errors: a token cache that cannot be read is rebuilt by fetching a new token.
type Cache struct {
	storage Storage
	sealer  *Sealer
	logger  *slog.Logger
}

// NewCache creates a Cache over storage keyed by secret.
func NewCache(storage Storage, secret string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sealer, err := NewSealer(secret)
	if err != nil {
		return nil, err
	}

	return &Cache{storage: storage, sealer: sealer, logger: logger}, nil
}

// Load returns the cached entry for clientID and scope. The second result is
// false on any miss: nothing stored, unreadable storage, undecryptable blob,
// or an entry for a different client or scope. Expiry is the caller's check.
func (c *Cache) Load(clientID, scope string) (Entry, bool) {
	blob, err := c.storage.Read()
	if err != nil {
		c.logger.Warn("token cache unreadable, treating as miss", slog.String("error", err.Error()))
		return Entry{}, false
	}

	if blob == nil {
		c.logger.Debug("token cache empty")
		return Entry{}, false
	}

	e, err := c.sealer.Open(blob, clientID, scope)
	if err != nil {
		c.logger.Info("token cache rejected, treating as miss", slog.String("reason", err.Error()))
		return Entry{}, false
	}

	return e, true
}

// Save seals and stores e.
func (c *Cache) Save(e Entry) error {
	blob, err := c.sealer.Seal(e)
	if err != nil {
		return err
	}

	if err := c.storage.Write(blob); err != nil {
		return fmt.Errorf("tokenfile: storing sealed token: %w", err)
	}

	return nil
}

// Clear removes any stored token.
func (c *Cache) Clear() error {
	return c.storage.Remove()
}
