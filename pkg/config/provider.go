package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagConfigKeys maps CLI flag names to the config keys they override.
// Only flags the user explicitly set are applied.
var flagConfigKeys = map[string]string{
	"service-name": "service.name",
}

// ConfigProvider loads configuration while retaining the effective merged
// settings map, which the CLI uses to render `config show` output.
type ConfigProvider struct {
	loader *ViperLoader
	flags  *pflag.FlagSet
	v      *viper.Viper
}

// NewConfigProvider creates a provider backed by a ViperLoader.
func NewConfigProvider(configFile, envPrefix string) *ConfigProvider {
	return &ConfigProvider{
		loader: NewViperLoader(configFile, envPrefix),
		v:      viper.New(),
	}
}

// WithServiceNameDefault sets the default service.name used when no config/env override is provided.
func (p *ConfigProvider) WithServiceNameDefault(serviceName string) *ConfigProvider {
	if p == nil || p.loader == nil {
		return p
	}
	p.loader.WithServiceNameDefault(serviceName)
	return p
}

// WithFlags binds a command's flag set so explicitly-set flags override
// file and environment values.
func (p *ConfigProvider) WithFlags(flags *pflag.FlagSet) *ConfigProvider {
	if p == nil {
		return p
	}
	p.flags = flags
	return p
}

// ConfigFile returns the path to the config file that was loaded, or empty string if none.
func (p *ConfigProvider) ConfigFile() string {
	if p.loader == nil {
		return ""
	}
	return p.loader.configFile
}

// Load loads and validates the configuration without secrets merging.
func (p *ConfigProvider) Load(core *Config) error {
	_, err := p.load(core, false)
	return err
}

// LoadWithSecrets loads configuration including the secrets merge.
// Returns the raw secrets map used for redaction (nil when no secrets file was loaded).
func (p *ConfigProvider) LoadWithSecrets(core *Config) (map[string]interface{}, error) {
	return p.load(core, true)
}

// AllSettings returns the effective merged settings currently held by the provider.
func (p *ConfigProvider) AllSettings() map[string]interface{} {
	if p == nil || p.v == nil {
		return map[string]interface{}{}
	}
	return p.v.AllSettings()
}

func (p *ConfigProvider) load(core *Config, withSecrets bool) (map[string]interface{}, error) {
	p.v = viper.New()

	defaults := DefaultConfig()
	p.loader.setDefaults(p.v, defaults)

	if p.loader.configFile != "" {
		p.v.SetConfigFile(p.loader.configFile)
		if err := p.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", p.loader.configFile, err)
		}
	}

	var secrets map[string]interface{}
	if withSecrets {
		secretsFile, _, err := p.loader.discoverSecretsFile()
		if err != nil {
			return nil, err
		}
		if secretsFile != "" {
			secretsViper := viper.New()
			secretsViper.SetConfigFile(secretsFile)
			if err := secretsViper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read secrets file %s: %w", secretsFile, err)
			}
			secrets = secretsViper.AllSettings()
			if err := p.v.MergeConfigMap(secrets); err != nil {
				return nil, fmt.Errorf("failed to merge secrets: %w", err)
			}
		}
	}

	p.v.SetEnvPrefix(p.loader.envPrefix)
	p.loader.bindLegacyEnvVars()
	p.loader.bindEnvVars(p.v)

	// Flags the user explicitly set take precedence over every other source.
	if p.flags != nil {
		p.flags.Visit(func(f *pflag.Flag) {
			if key, ok := flagConfigKeys[f.Name]; ok {
				p.v.Set(key, f.Value.String())
			}
		})
	}

	if core == nil {
		core = &Config{}
	}
	if err := p.v.Unmarshal(core); err != nil {
		return nil, fmt.Errorf("failed to unmarshal core config: %w", err)
	}
	if err := p.loader.Validate(core); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return secrets, nil
}
