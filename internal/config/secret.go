package config

import "os"

// Secret holds a credential that must never leak through logs, %v
// formatting, or serialized dumps. Only Reveal returns the raw value.
type Secret struct {
	value string
}

const redacted = "[REDACTED]"

func NewSecret(value string) Secret {
	return Secret{value: value}
}

// SecretFromEnv reads the named environment variable.
func SecretFromEnv(key string) Secret {
	return Secret{value: os.Getenv(key)}
}

func (s Secret) Reveal() string { return s.value }

func (s Secret) IsZero() bool { return s.value == "" }

func (s Secret) String() string {
	if s.value == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Secret) MarshalJSON() ([]byte, error) {
	if s.value == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + redacted + `"`), nil
}

func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}
