package config

// ConfigBackend persists non-secret settings between runs.
//
// Get returns the stored value rendered as text so every key goes through
// keySpec.parse. Set receives the parsed value: ints and bools are kept
// native, everything else as the text the user typed.
type ConfigBackend interface {
	Get(key string) (raw string, ok bool, err error)
	Set(key string, value any) error
	Delete(key string) error
}
