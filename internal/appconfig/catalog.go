package appconfig

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

// AuthType enumerates how a provider expects its API key to be
// attached to outgoing model-list requests.
type AuthType string

const (
	AuthBearer     AuthType = "bearer"
	AuthHeader     AuthType = "header"
	AuthQueryParam AuthType = "query_param"
)

// ResponseFormat describes how to pull model identity out of a
// provider's model-listing response.
type ResponseFormat struct {
	ModelsPath          string `toml:"models_path"`
	ModelIDField        string `toml:"model_id_field"`
	ModelIDStripPrefix  string `toml:"model_id_strip_prefix,omitempty"`
	ModelNameField      string `toml:"model_name_field"`
}

// Provider is one entry in the model/provider catalog.
type Provider struct {
	Name           string            `toml:"name"`
	DisplayName    string            `toml:"display_name"`
	APIKeyEnv      string            `toml:"api_key_env"`
	ModelsURL      string            `toml:"models_url"`
	AuthType       AuthType          `toml:"auth_type"`
	AuthHeader     string            `toml:"auth_header,omitempty"`
	AuthParam      string            `toml:"auth_param,omitempty"`
	ExtraHeaders   map[string]string `toml:"extra_headers,omitempty"`
	ResponseFormat ResponseFormat    `toml:"response_format"`
}

// Model is one curated model entry in the catalog.
type Model struct {
	ID         string `toml:"id"`
	Name       string `toml:"name"`
	ProviderID string `toml:"provider_id"`
}

// Catalog is the read-mostly model/provider catalog loaded from
// models.toml.
type Catalog struct {
	Providers []Provider `toml:"providers"`
	Models    []Model    `toml:"models"`
}

// DefaultCatalog is the empty catalog used when no models.toml exists
// in either search location.
func DefaultCatalog() Catalog {
	return Catalog{}
}

func (p Provider) validate() error {
	if p.Name == "" {
		return errs.New(errs.FamilyConfig, "InvalidProvider", "provider name must not be empty")
	}
	if p.ModelsURL == "" {
		return errs.Newf(errs.FamilyConfig, "InvalidProvider", "provider %q: models_url must not be empty", p.Name)
	}
	switch p.AuthType {
	case AuthBearer, AuthHeader, AuthQueryParam:
	default:
		return errs.Newf(errs.FamilyConfig, "InvalidProvider", "provider %q: unknown auth_type %q", p.Name, p.AuthType)
	}
	return nil
}

// LoadCatalog reads models.toml from <resourceDir>/config/models.toml,
// then <resourceDir>/models.toml, returning DefaultCatalog() if neither
// exists.
func LoadCatalog(resourceDir string) (Catalog, error) {
	candidates := []string{
		filepath.Join(resourceDir, "config", "models.toml"),
		filepath.Join(resourceDir, "models.toml"),
	}
	for _, path := range candidates {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Catalog{}, errs.Wrap(errs.FamilyConfig, "Io", "failed to read catalog file "+path, err)
		}
		var cat Catalog
		if err := toml.Unmarshal(raw, &cat); err != nil {
			return Catalog{}, errs.Wrap(errs.FamilyConfig, "Parse", "failed to parse catalog file "+path, err)
		}
		for _, p := range cat.Providers {
			if err := p.validate(); err != nil {
				return Catalog{}, err
			}
		}
		return cat, nil
	}
	return DefaultCatalog(), nil
}
