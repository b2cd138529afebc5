// Package id generates the prefixed identifiers used for request tracing and local client handles.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// requestAlphabet avoids characters that need escaping in HTTP headers and log lines.
const requestAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generate creates a prefixed unique ID, e.g. "sse-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Request returns a short lowercase id for the X-Request-ID header.
// It falls back to a fixed marker when the system has no entropy, so a request is never blocked on tracing.
func Request() string {
	id, err := gonanoid.Generate(requestAlphabet, 16)
	if err != nil {
		return "req-unavailable"
	}
	return "req-" + id
}
