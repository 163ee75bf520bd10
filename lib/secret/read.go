// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"os"
)

// ReadFile reads a secret from path, trimming surrounding whitespace.
// An empty (or whitespace-only) file is an error.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer clear(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret file %s is empty", path)
	}
	return NewFromBytes(trimmed)
}

// FromEnvironment moves the value of the environment variable name into
// a Buffer and unsets the variable. It returns (nil, nil) when the
// variable is unset or empty.
func FromEnvironment(name string) (*Buffer, error) {
	value := bytes.TrimSpace([]byte(os.Getenv(name)))
	if len(value) == 0 {
		return nil, nil
	}
	if err := os.Unsetenv(name); err != nil {
		clear(value)
		return nil, fmt.Errorf("unsetting %s: %w", name, err)
	}
	return NewFromBytes(value)
}
