package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

// EnvInt reads an integer environment override. The second return is false
// when the variable is unset or empty.
func EnvInt(key string) (int, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}
