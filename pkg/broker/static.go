package broker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// StaticStore serves a fixed broker list held in memory. Replace swaps the
// whole list atomically, which is what the registry file watcher uses.
type StaticStore struct {
	mu      sync.RWMutex
	brokers map[string]Broker
}

// NewStaticStore creates a store over the given brokers.
func NewStaticStore(brokers []Broker) *StaticStore {
	s := &StaticStore{}
	s.Replace(brokers)
	return s
}

// FindByID returns the broker registered under id.
func (s *StaticStore) FindByID(ctx context.Context, id string) (*Broker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.brokers[id]
	if !ok {
		return nil, fmt.Errorf("broker %q: %w", id, ErrUnknownBroker)
	}
	return &b, nil
}

// Replace swaps the registered broker list.
func (s *StaticStore) Replace(brokers []Broker) {
	index := make(map[string]Broker, len(brokers))
	for _, b := range brokers {
		index[b.ID] = b
	}

	s.mu.Lock()
	s.brokers = index
	s.mu.Unlock()
}

// registryFile is the on-disk registry format:
//
//	brokers:
//	  - id: appid
//	    secret: SeCrEt
type registryFile struct {
	Brokers []Broker `yaml:"brokers"`
}

// LoadRegistryFile reads a yaml broker registry.
func LoadRegistryFile(path string) ([]Broker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read broker registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse broker registry: %w", err)
	}

	for i, b := range file.Brokers {
		if b.ID == "" || b.Secret == "" {
			return nil, fmt.Errorf("broker registry entry %d: id and secret are required", i)
		}
	}

	return file.Brokers, nil
}

// NewStaticStoreFromFile loads a yaml registry into a StaticStore.
func NewStaticStoreFromFile(path string) (*StaticStore, error) {
	brokers, err := LoadRegistryFile(path)
	if err != nil {
		return nil, err
	}
	return NewStaticStore(brokers), nil
}
