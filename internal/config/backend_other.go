//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// xdgPath resolves name under the XDG base directory named by env, falling
// back to fallback below the home directory.
func xdgPath(env, fallback string, name ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(append([]string{"."}, name...)...)
		}
		dir = filepath.Join(home, fallback)
	}
	return filepath.Join(append([]string{dir}, name...)...)
}

func defaultDataDir() string {
	return xdgPath("XDG_DATA_HOME", ".local/share", "tweetsweep")
}

func configFilePath() string {
	return xdgPath("XDG_CONFIG_HOME", ".config", "tweetsweep", "config.json")
}

// SecretHint names where secrets are kept on this platform.
func SecretHint() string {
	return secretsFilePath()
}

// readJSONFile decodes path into v. A missing file leaves v untouched.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSONFile replaces path with v, readable only by the owner.
func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tweetsweep-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// fileBackend keeps settings as one flat JSON object.
type fileBackend struct {
	path   string
	values map[string]any
}

func newPlatformBackend() ConfigBackend {
	b := &fileBackend{path: configFilePath(), values: make(map[string]any)}
	if err := readJSONFile(b.path, &b.values); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] ignoring config file %s: %v\n", b.path, err)
		b.values = nil
	}
	if b.values == nil {
		b.values = make(map[string]any)
	}
	return b
}

func (b *fileBackend) Get(key string) (string, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	case float64:
		if val != math.Trunc(val) || math.Abs(val) > math.MaxInt32 {
			return "", true, fmt.Errorf("%s: %v is not a whole number", key, val)
		}
		return strconv.FormatInt(int64(val), 10), true, nil
	default:
		return "", true, fmt.Errorf("%s: unsupported value %v", key, v)
	}
}

func (b *fileBackend) Set(key string, value any) error {
	b.values[key] = value
	return writeJSONFile(b.path, b.values)
}

func (b *fileBackend) Delete(key string) error {
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return writeJSONFile(b.path, b.values)
}
