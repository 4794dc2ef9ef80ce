package config

import "strings"

type Config struct {
	Api       ApiConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Providers ProvidersConfig `yaml:"providers"`
	Saves     SavesConfig     `yaml:"saves"`
}

type ApiConfig struct {
	Port           string `yaml:"port"`
	AllowedOrigins string `yaml:"allowedOrigins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	BaseDir string `yaml:"baseDir"`
	// PublicBaseUrl is prepended to storage paths to form the durable URL
	// handed back to clients, e.g. "http://localhost:8080/files".
	PublicBaseUrl string `yaml:"publicBaseUrl"`
}

type AuthConfig struct {
	JwtSecret string `yaml:"jwtSecret"`
}

type ProvidersConfig struct {
	// Default picks which client serves /generate: "pollinations" or "replicate".
	Default      string             `yaml:"default"`
	Pollinations PollinationsConfig `yaml:"pollinations"`
	Replicate    ReplicateConfig    `yaml:"replicate"`
}

type PollinationsConfig struct {
	BaseUrl string `yaml:"baseUrl"`
	Model   string `yaml:"model"`
	Steps   int    `yaml:"steps"`
	// Probe fires an async HEAD at the assembled URL; failures are logged only.
	Probe bool `yaml:"probe"`
}

type ReplicateConfig struct {
	ApiToken string `yaml:"apiToken"`
	BaseUrl  string `yaml:"baseUrl"`
	// Version is the model version hash POSTed to /predictions.
	Version             string `yaml:"version"`
	PollIntervalSeconds int    `yaml:"pollIntervalSeconds"`
	PollBackoffSeconds  int    `yaml:"pollBackoffSeconds"`
	MaxPollAttempts     int    `yaml:"maxPollAttempts"`
}

type SavesConfig struct {
	MaxConcurrent       int `yaml:"maxConcurrent"`
	FetchAttempts       int `yaml:"fetchAttempts"`
	FetchTimeoutSeconds int `yaml:"fetchTimeoutSeconds"`
}

// IsPlaceholder reports whether a secret still carries the template value from
// the sample env file (e.g. "YOUR_REPLICATE_API_TOKEN"). A placeholder means
// the feature depending on it is simply not configured.
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.Contains(v, "YOUR_")
}
