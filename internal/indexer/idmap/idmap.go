// Package idmap assigns dense integer ids to external keys (term text or
// document paths) in first-seen order and persists the association.
package idmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

// Map is a bijection between keys and ids 0..Len()-1. Ids are never reused
// and there is no removal. A Map is not safe for concurrent mutation; block
// building owns it exclusively.
type Map struct {
	keys []string
	ids  map[string]uint32
}

func New() *Map {
	return &Map{ids: make(map[string]uint32)}
}

// Intern returns the id of key, assigning the next unused id if key is new.
func (m *Map) Intern(key string) uint32 {
	if id, ok := m.ids[key]; ok {
		return id
	}
	id := uint32(len(m.keys))
	m.keys = append(m.keys, key)
	m.ids[key] = id
	return id
}

// IDOf looks key up without interning it.
func (m *Map) IDOf(key string) (uint32, error) {
	id, ok := m.ids[key]
	if !ok {
		return 0, apperrors.Newf(apperrors.ErrNotFound, "idmap", "key %q", key)
	}
	return id, nil
}

// Contains reports whether key has been interned.
func (m *Map) Contains(key string) bool {
	_, ok := m.ids[key]
	return ok
}

// KeyOf returns the key that was assigned id.
func (m *Map) KeyOf(id uint32) (string, error) {
	if int(id) >= len(m.keys) {
		return "", apperrors.Newf(apperrors.ErrNotFound, "idmap", "id %d (size %d)", id, len(m.keys))
	}
	return m.keys[id], nil
}

func (m *Map) Len() int {
	return len(m.keys)
}

// Keys returns the keys in id order. The slice must not be modified.
func (m *Map) Keys() []string {
	return m.keys
}

func (m *Map) MarshalJSON() ([]byte, error) {
	keys := m.keys
	if keys == nil {
		keys = []string{}
	}
	return json.Marshal(keys)
}

func (m *Map) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	ids := make(map[string]uint32, len(keys))
	for i, k := range keys {
		if _, dup := ids[k]; dup {
			return fmt.Errorf("duplicate key %q at id %d", k, i)
		}
		ids[k] = uint32(i)
	}
	m.keys = keys
	m.ids = ids
	return nil
}

// Save writes the map to path atomically.
func (m *Map) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling id map: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.IOf(err, "creating id map directory")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return apperrors.IOf(err, "writing id map %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperrors.IOf(err, "renaming id map %s", path)
	}
	return nil
}

// Load reads a map previously written by Save.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.IOf(err, "reading id map %s", path)
	}
	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing id map %s: %w: %w", path, apperrors.ErrMalformedIndex, err)
	}
	return m, nil
}
