package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"easel/internal/config"
	"easel/internal/services"
)

// Auth describes how a provider authenticates requests.
type Auth struct {
	Header        string `toml:"header"`
	Prefix        string `toml:"prefix"`
	Credential    string `toml:"credential"`
	CredentialEnv string `toml:"credential_env"`
}

// Resolve returns the header name and fully prefixed credential value.
// Missing credentials yield an empty value, not an error; the remote client
// decides whether the provider requires auth.
func (a Auth) Resolve() (header, value string) {
	header = strings.TrimSpace(a.Header)
	if header == "" {
		header = "Authorization"
	}
	prefix := a.Prefix
	if prefix == "" && header == "Authorization" {
		prefix = "Bearer "
	}
	credential := strings.TrimSpace(a.Credential)
	if credential == "" && a.CredentialEnv != "" {
		credential = strings.TrimSpace(os.Getenv(a.CredentialEnv))
	}
	if credential == "" {
		return header, ""
	}
	return header, prefix + credential
}

// EndpointTemplates holds the provider's URL templates. Relative paths are
// joined to the base URL; absolute URLs pass through unchanged.
type EndpointTemplates struct {
	Search  string `toml:"search"`
	Upload  string `toml:"upload"`
	Request string `toml:"request"`
	Poll    string `toml:"poll"`
}

// Upload configures how reference files reach the provider before a
// generate call.
type Upload struct {
	Multipart  bool   `toml:"multipart"`
	Field      string `toml:"field"`
	ResultPath string `toml:"result_path"`
}

// Async configures the polling state machine for asynchronous providers.
type Async struct {
	RequestIDPath       string `toml:"request_id_path"`
	StatusPath          string `toml:"status_path"`
	CompletedValue      string `toml:"completed_value"`
	FailedValue         string `toml:"failed_value"`
	ErrorPath           string `toml:"error_path"`
	OutputsPath         string `toml:"outputs_path"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	PollDeadlineSeconds int    `toml:"poll_deadline_seconds"`
}

// Enabled reports whether the provider declared async polling metadata.
func (a Async) Enabled() bool {
	return strings.TrimSpace(a.RequestIDPath) != "" && strings.TrimSpace(a.StatusPath) != ""
}

// ModelDef is one statically declared model inside a provider document.
type ModelDef struct {
	ID          string         `toml:"id"`
	DisplayName string         `toml:"display_name"`
	Mode        Mode           `toml:"mode"`
	Output      OutputType     `toml:"output"`
	TypeHint    string         `toml:"type"`
	Schema      Schema         `toml:"schema"`
	UIHints     map[string]any `toml:"ui"`
}

// UserModel is an operator-registered model without full provider metadata.
type UserModel struct {
	Provider    string `toml:"provider"`
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
	TypeHint    string `toml:"type"`
	Mode        Mode   `toml:"mode"`
}

// Provider is one provider document, built-in or loaded from providers.d.
type Provider struct {
	ID          string            `toml:"id"`
	DisplayName string            `toml:"display_name"`
	Execution   ExecutionMode     `toml:"execution"`
	BaseURL     string            `toml:"base_url"`
	Adapter     string            `toml:"adapter"`
	Auth        Auth              `toml:"auth"`
	Endpoints   EndpointTemplates `toml:"endpoints"`
	Upload      Upload            `toml:"upload"`
	Async       Async             `toml:"async"`
	Models      []ModelDef        `toml:"models"`
	RawFeed     []map[string]any  `toml:"raw_models"`
}

const userModelsFile = "user_models.toml"

// LoadProviders merges built-in provider documents with the TOML documents
// under the providers directory. A file whose id matches a built-in replaces
// it wholesale.
func LoadProviders(cfg *config.Config) ([]Provider, error) {
	byID := make(map[string]Provider)
	order := []string{}
	for _, provider := range builtinProviders() {
		byID[provider.ID] = provider
		order = append(order, provider.ID)
	}

	dir := cfg.Paths.ProvidersDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return providersInOrder(byID, order), nil
		}
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "load",
			fmt.Sprintf("read providers dir %s", dir), err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") || entry.Name() == userModelsFile {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "catalog", "load",
				fmt.Sprintf("read provider document %s", path), err)
		}
		var provider Provider
		if err := toml.Unmarshal(data, &provider); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "catalog", "load",
				fmt.Sprintf("parse provider document %s", path), err)
		}
		if strings.TrimSpace(provider.ID) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "catalog", "load",
				fmt.Sprintf("provider document %s missing id", path), nil)
		}
		if provider.Execution == "" {
			provider.Execution = ExecutionRemoteAsync
		}
		if _, exists := byID[provider.ID]; !exists {
			order = append(order, provider.ID)
		}
		byID[provider.ID] = provider
	}

	return providersInOrder(byID, order), nil
}

func providersInOrder(byID map[string]Provider, order []string) []Provider {
	providers := make([]Provider, 0, len(order))
	for _, id := range order {
		providers = append(providers, byID[id])
	}
	return providers
}

// LoadUserModels reads operator-registered models from the providers
// directory. A missing file is an empty list, not an error.
func LoadUserModels(cfg *config.Config) ([]UserModel, error) {
	path := filepath.Join(cfg.Paths.ProvidersDir, userModelsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "load",
			fmt.Sprintf("read user models %s", path), err)
	}
	var doc struct {
		Models []UserModel `toml:"models"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "load",
			fmt.Sprintf("parse user models %s", path), err)
	}
	return doc.Models, nil
}

// SaveUserModels rewrites the operator model registry.
func SaveUserModels(cfg *config.Config, models []UserModel) error {
	doc := struct {
		Models []UserModel `toml:"models"`
	}{Models: models}
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode user models: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.ProvidersDir, 0o755); err != nil {
		return fmt.Errorf("create providers dir: %w", err)
	}
	path := filepath.Join(cfg.Paths.ProvidersDir, userModelsFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write user models: %w", err)
	}
	return nil
}

// builtinProviders returns the defaults available before any operator
// configuration: the local engine with its standard image model.
func builtinProviders() []Provider {
	steps := float64(1)
	one := float64(0)
	maxSteps := float64(150)
	return []Provider{
		{
			ID:          "local",
			DisplayName: "Local Engine",
			Execution:   ExecutionQueuedLocal,
			Models: []ModelDef{
				{
					ID:          "default",
					DisplayName: "Local Diffusion",
					Mode:        ModeTextToImage,
					Schema: Schema{
						Properties: map[string]Property{
							"prompt":   {Type: TypeString},
							"width":    {Type: TypeInteger, Default: 1024},
							"height":   {Type: TypeInteger, Default: 1024},
							"seed":     {Type: TypeInteger, Default: -1},
							"steps":    {Type: TypeInteger, Default: 30, Minimum: &one, Maximum: &maxSteps, Step: &steps},
							"guidance": {Type: TypeNumber, Default: 7.5},
							"sampler":  {Type: TypeString, Default: "euler"},
						},
						Required: []string{"prompt"},
						Order:    []string{"prompt", "width", "height", "seed", "steps", "guidance", "sampler"},
					},
				},
			},
		},
	}
}
