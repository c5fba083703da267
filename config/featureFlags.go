package config

import (
	"os"
	"strconv"
	"strings"
)

// StrictImportDefault makes all-or-nothing the default commit policy for
// imports that do not specify one.
//
// Set via env:
// - IMPORT_STRICT_DEFAULT=true
func StrictImportDefault() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("IMPORT_STRICT_DEFAULT")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// ImportPreviewLimit bounds the sample of accepted records returned by
// preview-mode imports.
//
// Set via env:
// - IMPORT_PREVIEW_LIMIT=10
func ImportPreviewLimit() int {
	raw := strings.TrimSpace(os.Getenv("IMPORT_PREVIEW_LIMIT"))
	if raw == "" {
		return 10
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 10
	}
	return n
}

// ImportLockSeconds is the TTL of the best-effort per-company import lock.
//
// Set via env:
// - IMPORT_LOCK_SECONDS=300
func ImportLockSeconds() int {
	raw := strings.TrimSpace(os.Getenv("IMPORT_LOCK_SECONDS"))
	if raw == "" {
		return 300
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 300
	}
	return n
}
