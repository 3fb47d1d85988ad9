// Package appconfig owns the broker's persisted application
// configuration and the read-mostly model/provider catalog, both
// behind the same actor-serialized-write pattern as internal/state.
package appconfig

import (
	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

// CurrentVersion is the highest config schema version this build
// understands.
const CurrentVersion = 1

// FontSize is the UI font-size enum.
type FontSize string

const (
	FontSmall    FontSize = "Small"
	FontStandard FontSize = "Standard"
	FontLarge    FontSize = "Large"
)

// ChatDensity is the UI chat-density enum.
type ChatDensity string

const (
	DensityCompact     ChatDensity = "Compact"
	DensityNormal      ChatDensity = "Normal"
	DensityComfortable ChatDensity = "Comfortable"
)

// ServerPreferences is the server-preferences config subsection.
type ServerPreferences struct {
	LastUsedURL       string  `json:"last_used_url,omitempty"`
	LastUsedPort      *uint16 `json:"last_used_port,omitempty"`
	AutoStart         bool    `json:"auto_start"`
	WorkingDirectory  *string `json:"working_directory,omitempty"`
	PreferredProvider string  `json:"preferred_provider,omitempty"`
}

// UIPreferences is the UI-preferences config subsection.
type UIPreferences struct {
	FontSize    FontSize    `json:"font_size"`
	BaseFontPts float64     `json:"base_font_points"`
	ChatDensity ChatDensity `json:"chat_density"`
}

// AudioPreferences is the audio config subsection.
type AudioPreferences struct {
	PushToTalkKey    string  `json:"push_to_talk_key"`
	ModelWeightsPath *string `json:"model_weights_path,omitempty"`
}

// AppConfig is the whole persisted, versioned configuration record.
type AppConfig struct {
	Version int               `json:"version"`
	Server  ServerPreferences `json:"server"`
	UI      UIPreferences     `json:"ui"`
	Audio   AudioPreferences  `json:"audio"`
}

// Default returns the configuration used when no config file exists.
func Default() AppConfig {
	return AppConfig{
		Version: CurrentVersion,
		Server: ServerPreferences{
			AutoStart: false,
		},
		UI: UIPreferences{
			FontSize:    FontStandard,
			BaseFontPts: 14.0,
			ChatDensity: DensityNormal,
		},
		Audio: AudioPreferences{
			PushToTalkKey: "F13",
		},
	}
}

// Validate enforces the save-time invariants: version in range, font
// points in range, and any URL field present is non-empty and
// scheme-prefixed.
func (c AppConfig) Validate() error {
	if c.Version < 1 || c.Version > CurrentVersion {
		return errs.Newf(errs.FamilyValidation, "InvalidVersion",
			"config version %d is outside the supported range [1, %d]", c.Version, CurrentVersion)
	}
	if c.UI.BaseFontPts < 8.0 || c.UI.BaseFontPts > 72.0 {
		return errs.Newf(errs.FamilyValidation, "InvalidField",
			"base font points %.1f is outside the supported range [8.0, 72.0]", c.UI.BaseFontPts)
	}
	switch c.UI.FontSize {
	case FontSmall, FontStandard, FontLarge, "":
	default:
		return errs.Newf(errs.FamilyValidation, "InvalidField", "unknown font size %q", c.UI.FontSize)
	}
	switch c.UI.ChatDensity {
	case DensityCompact, DensityNormal, DensityComfortable, "":
	default:
		return errs.Newf(errs.FamilyValidation, "InvalidField", "unknown chat density %q", c.UI.ChatDensity)
	}
	if c.Server.LastUsedURL != "" && !hasURLScheme(c.Server.LastUsedURL) {
		return errs.New(errs.FamilyValidation, "InvalidField", "last_used_url must be scheme-prefixed")
	}
	return nil
}

// ValidatePreferredProvider checks Server.PreferredProvider, if set,
// against catalog's known provider names. An empty catalog (no
// providers loaded yet) is never grounds for rejection.
func (c AppConfig) ValidatePreferredProvider(catalog Catalog) error {
	if c.Server.PreferredProvider == "" || len(catalog.Providers) == 0 {
		return nil
	}
	for _, p := range catalog.Providers {
		if p.Name == c.Server.PreferredProvider {
			return nil
		}
	}
	return errs.Newf(errs.FamilyValidation, "InvalidField",
		"preferred_provider %q is not in the loaded catalog", c.Server.PreferredProvider)
}

func hasURLScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i > 0
		}
		if !isSchemeChar(s[i]) {
			return false
		}
	}
	return false
}

func isSchemeChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '+' || b == '-' || b == '.'
}
