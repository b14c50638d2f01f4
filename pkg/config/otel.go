package config

import (
	"fmt"
	"os"
)

// OpenTelemetryConfig contains OpenTelemetry configuration. Traces and
// metrics share one OTLP/HTTP endpoint.
type OpenTelemetryConfig struct {
	Enabled            bool              `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	ServiceName        string            `yaml:"serviceName" env:"OTEL_SERVICE_NAME" env-default:"vitalsgw"`
	ServiceVersion     string            `yaml:"serviceVersion" env:"OTEL_SERVICE_VERSION" env-default:"1.0.0"`
	Environment        string            `yaml:"environment" env:"OTEL_ENVIRONMENT" env-default:"production"`
	Endpoint           string            `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure           bool              `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"false"`
	Headers            map[string]string `yaml:"headers"`
	ResourceAttributes map[string]string `yaml:"resourceAttributes"`

	Traces  OTelTracesConfig  `yaml:"traces"`
	Metrics OTelMetricsConfig `yaml:"metrics"`
}

// OTelTracesConfig contains OpenTelemetry traces configuration
type OTelTracesConfig struct {
	Enabled             bool    `yaml:"enabled" env:"OTEL_TRACES_ENABLED" env-default:"true"`
	SamplingRatio       float64 `yaml:"samplingRatio" env:"OTEL_TRACES_SAMPLING_RATIO" env-default:"1.0"`
	ScheduleDelayMillis int     `yaml:"scheduleDelayMillis" env:"OTEL_BSP_SCHEDULE_DELAY" env-default:"5000"`
}

// OTelMetricsConfig contains OpenTelemetry metrics configuration
type OTelMetricsConfig struct {
	Enabled              bool `yaml:"enabled" env:"OTEL_METRICS_ENABLED" env-default:"true"`
	IntervalMillis       int  `yaml:"intervalMillis" env:"OTEL_METRICS_INTERVAL" env-default:"30000"`
	EnableRuntimeMetrics bool `yaml:"enableRuntimeMetrics" env:"OTEL_ENABLE_RUNTIME_METRICS" env-default:"false"`
}

// ResolvedEndpoint returns the configured endpoint or the standard OTLP env var.
func (c *OpenTelemetryConfig) ResolvedEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Validate validates OpenTelemetry configuration if enabled
func (c *OpenTelemetryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.ServiceName == "" {
		return fmt.Errorf("opentelemetry service name is required when OpenTelemetry is enabled")
	}
	if !c.Traces.Enabled && !c.Metrics.Enabled {
		return fmt.Errorf("opentelemetry is enabled but both traces and metrics are disabled")
	}
	if c.ResolvedEndpoint() == "" {
		return fmt.Errorf("opentelemetry endpoint is required when OpenTelemetry is enabled")
	}

	if c.Traces.Enabled {
		if c.Traces.SamplingRatio < 0 || c.Traces.SamplingRatio > 1 {
			return fmt.Errorf("opentelemetry traces sampling ratio must be between 0 and 1, got: %f", c.Traces.SamplingRatio)
		}
		if c.Traces.ScheduleDelayMillis < 0 {
			return fmt.Errorf("opentelemetry traces batch schedule delay must be >= 0")
		}
	}

	if c.Metrics.Enabled && c.Metrics.IntervalMillis < 1000 {
		return fmt.Errorf("opentelemetry metrics interval must be at least 1000ms (1 second)")
	}

	return nil
}
