// Package credentials stores access keys per endpoint.
//
// Callers resolve credentials here and pass them to the object store
// client with every call; the client itself never reads them.
package credentials

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/koustreak/s3nav/internal/logger"
)

// Environment variables read by EnvStore.
const (
	EnvAccessKey = "S3NAV_ACCESS_KEY"
	EnvSecretKey = "S3NAV_SECRET_KEY"
)

// ErrNotFound is returned when no credentials exist for an endpoint.
var ErrNotFound = errors.New("credentials not found")

// Store saves, loads and deletes the key pair for an endpoint.
type Store interface {
	Save(endpoint, accessKey, secretKey string) error
	Load(endpoint string) (accessKey, secretKey string, err error)
	Delete(endpoint string) error
}

// EnvStore reads credentials from the environment. It never writes
// secrets anywhere: Save and Delete only log a warning.
type EnvStore struct {
	log    *logger.Logger
	lookup func(string) (string, bool)
}

// NewEnvStore returns a store backed by S3NAV_ACCESS_KEY and S3NAV_SECRET_KEY.
func NewEnvStore(log *logger.Logger) *EnvStore {
	if log == nil {
		log = logger.Nop()
	}
	return &EnvStore{log: log, lookup: os.LookupEnv}
}

// Load returns the environment's key pair for any endpoint.
func (s *EnvStore) Load(endpoint string) (string, string, error) {
	ak, okA := s.lookup(EnvAccessKey)
	sk, okS := s.lookup(EnvSecretKey)
	if !okA || !okS || strings.TrimSpace(ak) == "" {
		return "", "", ErrNotFound
	}
	return ak, sk, nil
}

// Save does not persist anything.
func (s *EnvStore) Save(endpoint, accessKey, secretKey string) error {
	s.log.WarnWith("credentials not persisted; set them in the environment instead", nil, map[string]interface{}{
		"endpoint":   endpoint,
		"access_key": logger.Redact(accessKey),
		"env":        EnvAccessKey + "/" + EnvSecretKey,
	})
	return nil
}

// Delete does not remove anything.
func (s *EnvStore) Delete(endpoint string) error {
	s.log.WarnWith("credentials live in the environment; unset them there", nil, map[string]interface{}{
		"endpoint": endpoint,
	})
	return nil
}

type keyPair struct {
	access string
	secret string
}

// MemoryStore keeps credentials in memory for the life of the process.
// It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	pairs map[string]keyPair
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pairs: make(map[string]keyPair)}
}

func (s *MemoryStore) Save(endpoint, accessKey, secretKey string) error {
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[endpoint] = keyPair{access: accessKey, secret: secretKey}
	return nil
}

func (s *MemoryStore) Load(endpoint string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pairs[endpoint]
	if !ok {
		return "", "", ErrNotFound
	}
	return p.access, p.secret, nil
}

// Delete removes the endpoint's credentials. Deleting missing credentials
// succeeds.
func (s *MemoryStore) Delete(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pairs, endpoint)
	return nil
}

// Chain tries each store in order and returns the first credentials found.
// Save and Delete go to the first store.
type Chain []Store

func (c Chain) Load(endpoint string) (string, string, error) {
	for _, s := range c {
		ak, sk, err := s.Load(endpoint)
		if err == nil {
			return ak, sk, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", "", err
		}
	}
	return "", "", ErrNotFound
}

func (c Chain) Save(endpoint, accessKey, secretKey string) error {
	if len(c) == 0 {
		return errors.New("no credential store configured")
	}
	return c[0].Save(endpoint, accessKey, secretKey)
}

func (c Chain) Delete(endpoint string) error {
	if len(c) == 0 {
		return nil
	}
	return c[0].Delete(endpoint)
}
