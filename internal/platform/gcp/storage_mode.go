package gcp

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ArchiveMode selects where uncertain scans are written.
type ArchiveMode string

const (
	ArchiveModeGCS         ArchiveMode = "gcs"
	ArchiveModeGCSEmulator ArchiveMode = "gcs_emulator"
)

type ArchiveStorageConfig struct {
	Mode         ArchiveMode
	EmulatorHost string
	// Inferred is set when the mode was not given and STORAGE_EMULATOR_HOST
	// alone selected the emulator.
	Inferred bool
}

func (c ArchiveStorageConfig) Emulated() bool { return c.Mode == ArchiveModeGCSEmulator }

type ArchiveConfigError struct {
	Field string
	Value string
	Cause error
}

func (e *ArchiveConfigError) Error() string {
	if e == nil {
		return "invalid archive storage config"
	}
	switch e.Field {
	case "ARCHIVE_STORAGE_MODE":
		return fmt.Sprintf("invalid ARCHIVE_STORAGE_MODE=%q (allowed: %q, %q)", e.Value, ArchiveModeGCS, ArchiveModeGCSEmulator)
	case "STORAGE_EMULATOR_HOST":
		if e.Value == "" {
			return fmt.Sprintf("ARCHIVE_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", ArchiveModeGCSEmulator)
		}
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected an absolute URL like http://fake-gcs:4443", e.Value)
	default:
		return "invalid archive storage config"
	}
}

func (e *ArchiveConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ArchiveStorageFromEnv reads ARCHIVE_STORAGE_MODE and STORAGE_EMULATOR_HOST.
// An unset mode with an emulator host still means the emulator, so local
// compose setups keep working with just the host variable.
func ArchiveStorageFromEnv() (ArchiveStorageConfig, error) {
	cfg := ArchiveStorageConfig{
		EmulatorHost: strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/"),
	}
	raw := strings.TrimSpace(os.Getenv("ARCHIVE_STORAGE_MODE"))
	switch mode := ArchiveMode(strings.ToLower(raw)); mode {
	case "":
		cfg.Mode = ArchiveModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = ArchiveModeGCSEmulator
			cfg.Inferred = true
		}
	case ArchiveModeGCS, ArchiveModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, &ArchiveConfigError{Field: "ARCHIVE_STORAGE_MODE", Value: raw}
	}
	return cfg, cfg.Validate()
}

func (c ArchiveStorageConfig) Validate() error {
	switch c.Mode {
	case ArchiveModeGCS:
		return nil
	case ArchiveModeGCSEmulator:
	default:
		return &ArchiveConfigError{Field: "ARCHIVE_STORAGE_MODE", Value: string(c.Mode)}
	}
	if c.EmulatorHost == "" {
		return &ArchiveConfigError{Field: "STORAGE_EMULATOR_HOST"}
	}
	u, err := url.Parse(c.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ArchiveConfigError{Field: "STORAGE_EMULATOR_HOST", Value: c.EmulatorHost, Cause: err}
	}
	return nil
}
