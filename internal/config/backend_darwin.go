//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.tweetsweep.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tweetsweep-data"
	}
	return filepath.Join(home, "Library", "Application Support", "tweetsweep")
}

// SecretHint names where secrets are kept on this platform.
func SecretHint() string {
	return "macOS Keychain (service: " + secretService + ")"
}

// defaultsBackend stores settings in the user defaults domain.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return defaultsBackend{domain: defaultsDomain}
}

func (b defaultsBackend) run(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (b defaultsBackend) Get(key string) (string, bool, error) {
	out, err := b.run("read", b.domain, key)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s: %w (%s)", key, err, out)
	}
	return out, true, nil
}

func (b defaultsBackend) Set(key string, value any) error {
	args := []string{"write", b.domain, key}
	switch v := value.(type) {
	case int:
		args = append(args, "-int", strconv.Itoa(v))
	case bool:
		args = append(args, "-bool", strconv.FormatBool(v))
	default:
		args = append(args, "-string", fmt.Sprint(v))
	}
	if out, err := b.run(args...); err != nil {
		return fmt.Errorf("defaults write %s: %w (%s)", key, err, out)
	}
	return nil
}

func (b defaultsBackend) Delete(key string) error {
	if _, ok, err := b.Get(key); err != nil || !ok {
		return err
	}
	if out, err := b.run("delete", b.domain, key); err != nil {
		return fmt.Errorf("defaults delete %s: %w (%s)", key, err, out)
	}
	return nil
}
