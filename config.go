package cascada

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cascadalang/cascada/internal/loader"
	"github.com/cascadalang/cascada/internal/runtime"
)

// Config is the YAML-decodable shape of an Environment's configuration
// (§4.14), letting a host configure cascada from a file instead of only
// Go code, the way a service's own config/*.yaml drives its setup.
type Config struct {
	Dev              bool     `yaml:"dev"`
	Autoescape       bool     `yaml:"autoescape"`
	ThrowOnUndefined bool     `yaml:"throwOnUndefined"`
	TrimBlocks       bool     `yaml:"trimBlocks"`
	LstripBlocks     bool     `yaml:"lstripBlocks"`
	LoaderRoot       string   `yaml:"loaderRoot"`
	CommandHandlers  []string `yaml:"commandHandlers"`
}

// LoadEnvironmentConfig reads and decodes the YAML document at path.
func LoadEnvironmentConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cascada: reading config %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cascada: parsing config %q: %w", path, err)
	}
	return &cfg, nil
}

// Flags translates the config's behavior switches into runtime.Flags.
func (c *Config) Flags() runtime.Flags {
	return runtime.Flags{
		Dev:              c.Dev,
		Autoescape:       c.Autoescape,
		ThrowOnUndefined: c.ThrowOnUndefined,
		TrimBlocks:       c.TrimBlocks,
		LstripBlocks:     c.LstripBlocks,
	}
}

// NewEnvironmentFromConfig builds an Environment from cfg: an FSLoader
// rooted at cfg.LoaderRoot when set, the decoded Flags, and the text/data
// handlers text/data handlers registered by runtime.NewEnv already cover
// every name in cfg.CommandHandlers that isn't a custom handler the host
// still has to register itself via WithCommandHandler — CommandHandlers
// here is informational (what a "cascada check --config" should expect
// to find registered), not a registration mechanism on its own, since
// YAML has no way to name a Go command.Handler constructor.
func NewEnvironmentFromConfig(cfg *Config, extraOpts ...EnvironmentOption) *Environment {
	opts := []EnvironmentOption{WithFlags(cfg.Flags())}
	if cfg.LoaderRoot != "" {
		opts = append(opts, WithLoader(loader.NewFSLoader(cfg.LoaderRoot)))
	}
	opts = append(opts, extraOpts...)
	return New(opts...)
}
