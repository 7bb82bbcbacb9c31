package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	rememberConfigName = "config"
	rememberConfigType = "toml"
	rememberPathKey    = "session.path"
	rememberDirName    = "livo"
	rememberFileName   = "session.toml"
	rememberFileMode   = 0o600
	rememberDirMode    = 0o700
	rememberTempGlob   = ".session-*.toml.tmp"
)

// RememberedSession is the "stay signed in" record: enough to pre-fill the
// auth form and to restore the session at startup without a password.
type RememberedSession struct {
	UID     string    `toml:"uid"`
	Email   string    `toml:"email"`
	Token   string    `toml:"token"`
	SavedAt time.Time `toml:"saved_at"`
}

type rememberFile struct {
	Session *RememberedSession `toml:"session"`
}

// RememberStore persists the remembered session in a TOML file. Writes go
// through a temp file and rename so a crash never leaves a torn record.
type RememberStore struct {
	path string
	mu   sync.Mutex
}

// NewRememberStore resolves the cache path through viper so deployments can
// relocate it via an optional config file next to it.
func NewRememberStore(cfg *viper.Viper) (*RememberStore, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config directory: %w", err)
	}
	defaultPath := filepath.Join(base, rememberDirName, rememberFileName)

	cfg.SetConfigName(rememberConfigName)
	cfg.SetConfigType(rememberConfigType)
	cfg.AddConfigPath(filepath.Join(base, rememberDirName))
	cfg.SetDefault(rememberPathKey, defaultPath)

	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	path := cfg.GetString(rememberPathKey)
	if path == "" {
		return nil, errors.New("remember-me path is empty")
	}
	return &RememberStore{path: path}, nil
}

// NewRememberStoreAt pins the cache to an explicit path (tests, --data-dir).
func NewRememberStoreAt(path string) *RememberStore {
	return &RememberStore{path: path}
}

// Load returns the remembered session, or nil when none is stored.
func (s *RememberStore) Load() (*RememberedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var file rememberFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode remembered session: %w", err)
	}
	if file.Session == nil || file.Session.UID == "" || file.Session.Token == "" {
		return nil, nil
	}
	return file.Session, nil
}

// Save replaces the remembered session.
func (s *RememberStore) Save(sess RememberedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now()
	}
	data, err := toml.Marshal(rememberFile{Session: &sess})
	if err != nil {
		return fmt.Errorf("encode remembered session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, rememberDirMode); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, rememberTempGlob)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(rememberFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Clear forgets the remembered session. Missing file is not an error.
func (s *RememberStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
