//go:build !darwin

package config

import "fmt"

func secretsFilePath() string {
	return xdgPath("XDG_DATA_HOME", ".local/share", "tweetsweep", "secrets.json")
}

// secretsFile maps service to account to secret.
type secretsFile map[string]map[string]string

func loadSecrets() (secretsFile, error) {
	s := secretsFile{}
	if err := readJSONFile(secretsFilePath(), &s); err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if s == nil {
		s = secretsFile{}
	}
	return s, nil
}

func keychainGet(service, account string) ([]byte, error) {
	s, err := loadSecrets()
	if err != nil {
		return nil, err
	}
	val, ok := s[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret %s/%s in %s", service, account, secretsFilePath())
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	s, err := loadSecrets()
	if err != nil {
		return err
	}
	if s[service] == nil {
		s[service] = map[string]string{}
	}
	s[service][account] = value
	return writeJSONFile(secretsFilePath(), s)
}
