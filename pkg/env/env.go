package env

import "os"

// Get reads an environment variable, falling back when it is unset or
// empty. Empty values count as unset so a blank override does not
// silence a default.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
