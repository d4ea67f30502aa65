// Package passwords maps device MAC addresses to the passwords protecting them.
package passwords

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/asnowfix/switchbot-mqtt/internal/tools"
	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"
)

// Store holds device passwords, loaded from a JSON or YAML file, e.g.
//
//	{"11:22:33:44:55:66": "password", "aa:bb:cc:dd:ee:ff": "secret"}
//
// The zero value is an empty store.
type Store struct {
	path string
	log  logr.Logger

	mu        sync.RWMutex
	passwords map[string]string
}

// Load reads path; an empty path yields an empty store.
func Load(log logr.Logger, path string) (*Store, error) {
	s := &Store{
		log:       log.WithName("Passwords"),
		passwords: map[string]string{},
	}
	if path == "" {
		return s, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device password file %s: %w", path, err)
	}
	s.path = absPath
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromMap returns a static store.
func FromMap(passwords map[string]string) *Store {
	return &Store{log: logr.Discard(), passwords: passwords}
}

// Get returns the password of the device with the given MAC address, if any.
func (s *Store) Get(mac string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if password, ok := s.passwords[mac]; ok {
		return password, true
	}
	// keys may be written in any case or with other separators
	mac = tools.NormalizeMac(mac)
	for m, password := range s.passwords {
		if tools.NormalizeMac(m) == mac {
			return password, true
		}
	}
	return "", false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passwords)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read device password file: %w", err)
	}
	passwords, err := parse(s.path, data)
	if err != nil {
		return fmt.Errorf("failed to parse device password file %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.passwords = passwords
	s.mu.Unlock()
	s.log.Info("Loaded device passwords", "path", s.path, "count", len(passwords))
	return nil
}

func parse(path string, data []byte) (map[string]string, error) {
	passwords := map[string]string{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &passwords); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &passwords); err != nil {
			return nil, err
		}
	}
	return passwords, nil
}

// Watch reloads the file whenever it changes, until ctx is done.
// A file that fails to parse leaves the previous passwords in place.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// editors replace files, so watch the directory
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}
	s.log.Info("Watching device password file", "path", s.path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(100 * time.Millisecond)
			}
		case <-debounce:
			debounce = nil
			if err := s.load(); err != nil {
				s.log.Error(err, "Keeping previous device passwords")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error(err, "Watcher error")
		}
	}
}
