// Package gateway provides options for the knowledge gateway client.
package gateway

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// Options defines how to reach the retrieval-and-generation gateway.
type Options struct {
	BaseURL         string        `json:"base-url" mapstructure:"base-url"`
	APIKey          string        `json:"-" mapstructure:"api-key"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max-retries" mapstructure:"max-retries"`
	BreakerFailures int           `json:"breaker-failures" mapstructure:"breaker-failures"`
	BreakerCooldown time.Duration `json:"breaker-cooldown" mapstructure:"breaker-cooldown"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		BaseURL:         "http://127.0.0.1:8088",
		Timeout:         60 * time.Second,
		MaxRetries:      2,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// AddFlags adds flags for gateway options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.BaseURL, "gateway.base-url", o.BaseURL, "Knowledge gateway base URL")
	fs.StringVar(&o.APIKey, "gateway.api-key", o.APIKey, "Gateway API key (prefer DOCQA_GATEWAY_API_KEY env var)")
	fs.DurationVar(&o.Timeout, "gateway.timeout", o.Timeout, "Per-request timeout")
	fs.IntVar(&o.MaxRetries, "gateway.max-retries", o.MaxRetries, "Retries on 5xx or transport errors")
	fs.IntVar(&o.BreakerFailures, "gateway.breaker-failures", o.BreakerFailures, "Consecutive failures before the circuit opens")
	fs.DurationVar(&o.BreakerCooldown, "gateway.breaker-cooldown", o.BreakerCooldown, "How long the circuit stays open")
}

// Complete fills the API key from the environment when not set.
func (o *Options) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv("DOCQA_GATEWAY_API_KEY")
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	u, err := url.Parse(o.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("gateway.base-url %q is not an absolute URL", o.BaseURL)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive")
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("gateway.max-retries must not be negative")
	}
	return nil
}
