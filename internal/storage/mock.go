package storage

import (
	"encoding/json"
	"fmt"
	"sync"
)

func MockShard() Shard {
	storage := NewMockStorage()
	return func(shard string) (Persistence, error) {
		return storage, nil
	}
}

// MockStorage keeps the json form of every stored value in memory.
type MockStorage struct {
	mutex    *sync.RWMutex
	Elements map[Key][]byte
}

func NewMockStorage() *MockStorage {
	return &MockStorage{
		mutex:    new(sync.RWMutex),
		Elements: make(map[Key][]byte),
	}
}

func (m *MockStorage) Store(k Key, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not encode '%v': %w", k, err)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Elements[k] = b
	return nil
}

func (m *MockStorage) Load(k Key, value interface{}) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	b, ok := m.Elements[k]
	if !ok {
		return fmt.Errorf("not found '%v': %w", k, NotFoundErr)
	}
	if err := json.Unmarshal(b, value); err != nil {
		return fmt.Errorf("could not decode '%v': %s: %w", k, err.Error(), CouldNotLoadErr)
	}
	return nil
}
