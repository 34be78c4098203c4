// Package config reads the deploy-time environment of each Lambda once per
// process. Values are bound explicitly so that a missing variable is a
// validation error rather than a silent zero value.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Authorizer configures the token-to-decision authorizer.
type Authorizer struct {
	// PolicyStoreID is the Verified Permissions policy store queried for every request.
	PolicyStoreID string `mapstructure:"policy_store_id" validate:"required"`
	// Namespace prefixes the action and resource entity types (e.g. AvpIotDemoApi).
	Namespace string `mapstructure:"namespace" validate:"required"`
	// TokenType selects which IsAuthorizedWithToken field carries the token.
	TokenType string `mapstructure:"token_type" validate:"required,oneof=identityToken accessToken"`
	LogLevel  string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Region    string `mapstructure:"region"`
}

// Integration configures the devices, download and role handlers.
type Integration struct {
	// ThingName is the IoT thing reported as the target device of a download request.
	ThingName string `mapstructure:"thing_name" validate:"required"`
	// Topic receives download requests.
	Topic           string `mapstructure:"topic" validate:"required"`
	CORSAllowOrigin string `mapstructure:"cors_allow_origin" validate:"required"`
	LogLevel        string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Region          string `mapstructure:"region"`
}

// Sync configures the policy sync tool. It is populated from flags rather
// than the environment, but validated the same way.
type Sync struct {
	PolicyStoreID string `validate:"required_unless=Local true"`
	UserPoolID    string `validate:"required"`
	Namespace     string `validate:"required"`
	Region        string `validate:"required_with=AccountID"`
	AccountID     string `validate:"omitempty,numeric,len=12"`
	SchemaFile    string `validate:"omitempty,file"`
	PolicyDir     string `validate:"omitempty,dir"`
	CanaryFile    string `validate:"omitempty,file"`
	Local         bool
	DryRun        bool
	LogLevel      string `validate:"omitempty,oneof=debug info warn error"`
}

// Telemetry configures trace export. An empty EndpointURL disables export;
// a grpc:// prefix selects the gRPC exporter, anything else OTLP/HTTP.
type Telemetry struct {
	EndpointURL string  `mapstructure:"endpoint_url" validate:"omitempty,url"`
	ServiceName string  `mapstructure:"service_name" validate:"required"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	Insecure    bool    `mapstructure:"insecure"`
}

var validate = validator.New()

// Validate checks struct tags on any of the config types.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadAuthorizer reads POLICY_STORE_ID, NAMESPACE, TOKEN_TYPE, LOG_LEVEL and AWS_REGION.
func LoadAuthorizer() (*Authorizer, error) {
	var cfg Authorizer
	err := load(&cfg, map[string][]string{
		"policy_store_id": {"POLICY_STORE_ID"},
		"namespace":       {"NAMESPACE"},
		"token_type":      {"TOKEN_TYPE"},
		"log_level":       {"LOG_LEVEL"},
		"region":          {"AWS_REGION", "AWS_DEFAULT_REGION"},
	}, map[string]any{
		"log_level": "info",
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadIntegration reads IOT_THING_NAME, IOT_TOPIC, CORS_ALLOW_ORIGIN, LOG_LEVEL and AWS_REGION.
func LoadIntegration() (*Integration, error) {
	var cfg Integration
	err := load(&cfg, map[string][]string{
		"thing_name":        {"IOT_THING_NAME"},
		"topic":             {"IOT_TOPIC"},
		"cors_allow_origin": {"CORS_ALLOW_ORIGIN"},
		"log_level":         {"LOG_LEVEL"},
		"region":            {"AWS_REGION", "AWS_DEFAULT_REGION"},
	}, map[string]any{
		"thing_name":        "testDevice",
		"topic":             "device/data",
		"cors_allow_origin": "*",
		"log_level":         "info",
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadTelemetry reads OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SERVICE_NAME,
// OTEL_TRACES_SAMPLER_ARG and OTEL_EXPORTER_OTLP_INSECURE.
func LoadTelemetry(service string) (*Telemetry, error) {
	var cfg Telemetry
	err := load(&cfg, map[string][]string{
		"endpoint_url": {"OTEL_EXPORTER_OTLP_ENDPOINT"},
		"service_name": {"OTEL_SERVICE_NAME"},
		"sample_ratio": {"OTEL_TRACES_SAMPLER_ARG"},
		"insecure":     {"OTEL_EXPORTER_OTLP_INSECURE"},
	}, map[string]any{
		"service_name": service,
		"sample_ratio": 1.0,
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(out any, env map[string][]string, defaults map[string]any) error {
	v := viper.New()
	for key, vars := range env {
		args := append([]string{key}, vars...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("decode configuration: %w", err)
	}
	return Validate(out)
}
