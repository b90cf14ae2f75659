package config

import (
	"fmt"
	"time"
)

// KeyInfo describes one settable key for `config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Type   string
	Value  string
}

// Keys describes every non-secret key, without values.
func Keys() []KeyInfo {
	var out []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		out = append(out, KeyInfo{Key: s.key, EnvVar: s.env, Type: s.typeName()})
	}
	return out
}

// ShowAll lists the effective value of every non-secret key.
func ShowAll(cfg Config) []KeyInfo {
	out := Keys()
	for i := range out {
		if s, err := lookup(out[i].Key); err == nil {
			out[i].Value = display(s.extract(cfg))
		}
	}
	return out
}

func display(v any) string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return `""`
		}
		return val
	case time.Duration:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// lookup finds the writable spec for key.
func lookup(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return keySpec{}, fmt.Errorf("%s is a secret: set %s or store it in %s", key, s.env, SecretHint())
		}
		return s, nil
	}
	return keySpec{}, fmt.Errorf("unknown config key %q (see `tweetsweep config keys`)", key)
}

// SetKey validates value and persists it in the platform backend.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), key, value)
}

func setKeyWith(b ConfigBackend, key, value string) error {
	s, err := lookup(key)
	if err != nil {
		return err
	}
	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("%s wants a %s: %w", key, s.typeName(), err)
	}
	return b.Set(key, s.stored(v, value))
}

// UnsetKey removes key from the platform backend so its default applies again.
func UnsetKey(key string) error {
	return unsetKeyWith(newPlatformBackend(), key)
}

func unsetKeyWith(b ConfigBackend, key string) error {
	if _, err := lookup(key); err != nil {
		return err
	}
	return b.Delete(key)
}
