package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// VaultExport is the "download my data" payload: everything the app holds
// for the signed-in user, in one human-readable document.
type VaultExport struct {
	ExportedAt string        `yaml:"exported_at"`
	Profile    *UserProfile  `yaml:"profile"`
	Memories   []Memory      `yaml:"memories"`
	History    []ChatMessage `yaml:"history"`
}

// ExportVault writes the current session's data to a YAML file in dir and
// returns the file path.
func (a *Application) ExportVault(dir string) (string, error) {
	st := a.Coordinator.State()
	if st.Identity == nil {
		return "", ErrNotSignedIn
	}

	export := VaultExport{
		ExportedAt: time.Now().Format(time.RFC3339),
		Profile:    st.Profile,
		Memories:   st.Memories,
		History:    st.History,
	}
	data, err := yaml.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}

	if dir == "" {
		dir = a.Config.DataDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("livo-export-%s.yml", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	a.Logger.Info("vault exported", map[string]interface{}{"path": path})
	return path, nil
}
