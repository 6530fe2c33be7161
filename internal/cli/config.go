// Package cli holds the configuration, input parsing and output formatting
// of the opa-eval command.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meigma/opaclient"
	"github.com/meigma/opaclient/sdk"
)

// EnvPrefix is the prefix of environment variables read by the CLI, for
// example OPA_SERVER_URL.
const EnvPrefix = "OPA"

// Configuration keys. Flags use the same names.
const (
	KeyServerURL   = "server-url"
	KeyHeader      = "header"
	KeyFormat      = "format"
	KeyTimeout     = "timeout"
	KeyRetries     = "retries"
	KeyGzip        = "gzip"
	KeyConcurrency = "concurrency"
	KeyVerbose     = "verbose"
)

// Config is the resolved CLI configuration.
type Config struct {
	ServerURL   string            `validate:"required,url"`
	Headers     map[string]string `validate:"dive,keys,required,endkeys"`
	Format      OutputFormat      `validate:"oneof=json yaml table"`
	Timeout     time.Duration     `validate:"gte=0"`
	Retries     uint              `validate:"lte=10"`
	Gzip        bool
	Concurrency int `validate:"gte=0"`
	Verbose     bool
}

var validate = validator.New()

// RegisterFlags adds the global flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyServerURL, "http://localhost:8181", "OPA server URL")
	fs.StringArray(KeyHeader, nil, "Header to send with every request, as key=value (repeatable)")
	fs.String(KeyFormat, string(FormatJSON), "Output format (json, yaml, table)")
	fs.Duration(KeyTimeout, 30*time.Second, "HTTP request timeout")
	fs.Uint(KeyRetries, 0, "Number of attempts for retryable responses (0 disables retries)")
	fs.Bool(KeyGzip, false, "Compress request bodies")
	fs.Int(KeyConcurrency, 0, "Maximum parallel requests when a batch falls back to single evaluations (0 is unlimited)")
	fs.BoolP(KeyVerbose, "v", false, "Log requests to stderr")
}

// NewViper binds fs to a viper instance that also reads OPA_* environment
// variables. Flags set on the command line take precedence.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	headers, err := ParseHeaders(v.GetStringSlice(KeyHeader))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL:   v.GetString(KeyServerURL),
		Headers:     headers,
		Format:      OutputFormat(strings.ToLower(v.GetString(KeyFormat))),
		Timeout:     v.GetDuration(KeyTimeout),
		Retries:     v.GetUint(KeyRetries),
		Gzip:        v.GetBool(KeyGzip),
		Concurrency: v.GetInt(KeyConcurrency),
		Verbose:     v.GetBool(KeyVerbose),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ParseHeaders parses key=value pairs.
func ParseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q: expected key=value", pair)
		}
		headers[key] = value
	}
	return headers, nil
}

// ClientOptions returns the options for an opaclient.Client built from c.
func (c *Config) ClientOptions(logger *slog.Logger) []opaclient.Option {
	sdkOpts := []sdk.Option{
		sdk.WithTimeout(c.Timeout),
		sdk.WithGzip(c.Gzip),
	}
	if c.Retries > 1 {
		sdkOpts = append(sdkOpts, sdk.WithRetryConfig(sdk.RetryConfig{
			MaxTries:              c.Retries,
			RetryConnectionErrors: true,
		}))
	}

	return []opaclient.Option{
		opaclient.WithHeaders(c.Headers),
		opaclient.WithLogger(logger),
		opaclient.WithBatchConcurrency(c.Concurrency),
		opaclient.WithSDKOptions(sdkOpts...),
	}
}

// NewClient creates a client for the configured server.
func (c *Config) NewClient(logger *slog.Logger) (*opaclient.Client, error) {
	return opaclient.New(c.ServerURL, c.ClientOptions(logger)...)
}

// Logger returns a text logger writing to w at debug level when verbose,
// or a discard logger.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	if !c.Verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
