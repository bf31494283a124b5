package config

import (
	"fmt"
	"os"

	"github.com/subosito/gotenv"
)

// LoadEnvFile reads the on-disk key-value environment file consulted at
// startup (`#` comment lines allowed). Entries whose
// values are empty or contain a placeholder substring are treated as
// unset and dropped. A missing file yields an empty map, not an error.
func LoadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer f.Close()

	parsed, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse env file %s: %w", path, err)
	}

	out := make(map[string]string, len(parsed))
	for k, v := range parsed {
		if !isUnset(v) {
			out[k] = v
		}
	}
	return out, nil
}
