package httpapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultAllowedOrigin = "http://localhost:5173"
	defaultSessionIssuer = "budgetmate"
	defaultSessionCookie = "budget_session"
	defaultViewMode      = ViewModePriority
)

// ViewMode selects the allocation table layout the client renders. The core
// treats it as injected configuration.
type ViewMode string

const (
	ViewModePriority ViewMode = "priority"
	ViewModeCategory ViewMode = "category"
	ViewModeSnapshot ViewMode = "snapshot"
)

// FeatureFlags are UI-facing toggles persisted outside the core.
type FeatureFlags struct {
	Enhanced bool
	ViewMode ViewMode
}

// Config aggregates runtime settings for the budget API.
type Config struct {
	ListenAddr        string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	RequestTimeout    time.Duration
	Features          FeatureFlags
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.Features.ViewMode == "" {
		cfg.Features.ViewMode = defaultViewMode
	}
	switch cfg.Features.ViewMode {
	case ViewModePriority, ViewModeCategory, ViewModeSnapshot:
	default:
		return fmt.Errorf("unrecognized view mode %q", cfg.Features.ViewMode)
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("session signing key is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
