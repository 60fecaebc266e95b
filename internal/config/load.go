package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file searched for in the project root and the
	// working directory, without extension.
	FileName = ".elemforge"

	// EnvPrefix prefixes environment overrides: ELEMFORGE_BUILD_NAMESPACE etc.
	EnvPrefix = "ELEMFORGE"
)

// Load merges a config file and ELEMFORGE_* environment variables into cfg.
//
// The current values of cfg are the base layer, so fields absent from the
// file keep them. If path is empty the file is searched for and a missing file
// is not an error. It returns the file used, if any.
func Load(cfg *Config, path string) (string, error) {
	if cfg == nil {
		return "", errors.New("config is nil")
	}

	base, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return "", fmt.Errorf("load config defaults: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	used := ""
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return "", fmt.Errorf("read config file %s: %w", path, err)
		}
		used = path
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(cfg.Project.Root)
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return "", fmt.Errorf("read config file: %w", err)
			}
		} else {
			used = v.ConfigFileUsed()
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return "", fmt.Errorf("decode config: %w", err)
	}
	return used, nil
}

const starterHeader = `# elemforge configuration.
# Values here are overridden by ELEMFORGE_<SECTION>_<KEY> environment variables
# and by command-line flags.
`

// Starter renders a starter config file for the component called name.
func Starter(name string) ([]byte, error) {
	cfg := New()
	cfg.Project.Name = name

	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode starter config: %w", err)
	}
	humanizeDurations(&doc, map[string]time.Duration{
		"timeout":  cfg.Runtime.Timeout,
		"debounce": cfg.Runtime.Debounce,
	})

	var buf bytes.Buffer
	buf.WriteString(starterHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode starter config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// humanizeDurations rewrites the named duration keys from nanosecond integers
// to "15m0s" strings. Only keys of the runtime section are touched.
func humanizeDurations(doc *yaml.Node, durations map[string]time.Duration) {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "runtime" {
			continue
		}
		section := doc.Content[i+1]
		for j := 0; j+1 < len(section.Content); j += 2 {
			d, ok := durations[section.Content[j].Value]
			if !ok {
				continue
			}
			section.Content[j+1].Tag = "!!str"
			section.Content[j+1].Value = d.String()
		}
	}
}
