package config

import (
	"fmt"
	"strings"
)

// ProfilingConfig contains Pyroscope profiling configuration
type ProfilingConfig struct {
	Enabled           bool              `yaml:"enabled" env:"PYROSCOPE_ENABLED" env-default:"false"`
	ApplicationName   string            `yaml:"applicationName" env:"PYROSCOPE_APPLICATION_NAME" env-default:"vitalsgw"`
	ServerAddress     string            `yaml:"serverAddress" env:"PYROSCOPE_SERVER_ADDRESS"`
	BasicAuthUser     string            `yaml:"basicAuthUser" env:"PYROSCOPE_BASIC_AUTH_USER"`
	BasicAuthPassword string            `yaml:"basicAuthPassword" env:"PYROSCOPE_BASIC_AUTH_PASSWORD"`
	TenantID          string            `yaml:"tenantID" env:"PYROSCOPE_TENANT_ID"`
	Tags              map[string]string `yaml:"tags"`

	// Profiles lists the enabled profile types by name, see ProfileNames.
	Profiles []string `yaml:"profiles" env:"PYROSCOPE_PROFILES" env-separator:"," env-default:"cpu,alloc_space,inuse_space"`
	// Rate applies to the mutex and block profiles.
	Rate int `yaml:"rate" env:"PYROSCOPE_PROFILE_RATE" env-default:"5"`
}

// ProfileNames are the accepted entries of ProfilingConfig.Profiles.
var ProfileNames = []string{
	"cpu",
	"alloc_objects",
	"alloc_space",
	"inuse_objects",
	"inuse_space",
	"goroutines",
	"mutex",
	"block",
}

// Validate validates profiling configuration if enabled
func (c *ProfilingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.ApplicationName == "" {
		return fmt.Errorf("profiling application name is required when profiling is enabled")
	}
	if c.ServerAddress == "" {
		return fmt.Errorf("profiling server address is required when profiling is enabled")
	}
	if c.Rate < 0 {
		return fmt.Errorf("profiling rate must be >= 0")
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one profile type must be enabled")
	}

	for i, p := range c.Profiles {
		p = strings.ToLower(strings.TrimSpace(p))
		if !knownProfile(p) {
			return fmt.Errorf("unknown profile type %q, expected one of: %s", p, strings.Join(ProfileNames, ", "))
		}
		c.Profiles[i] = p
	}

	return nil
}

func knownProfile(name string) bool {
	for _, p := range ProfileNames {
		if p == name {
			return true
		}
	}
	return false
}
