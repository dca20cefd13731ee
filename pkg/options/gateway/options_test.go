package gateway

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Flags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--gateway.base-url=https://kb.example.com", "--gateway.max-retries=4"}))
	assert.Equal(t, "https://kb.example.com", o.BaseURL)
	assert.Equal(t, 4, o.MaxRetries)
	assert.NoError(t, o.Validate())
}

func TestOptions_Validate(t *testing.T) {
	o := NewOptions()
	o.BaseURL = "kb.example.com"
	assert.Error(t, o.Validate())

	o = NewOptions()
	o.Timeout = 0
	assert.Error(t, o.Validate())
}

func TestOptions_CompleteFromEnv(t *testing.T) {
	t.Setenv("DOCQA_GATEWAY_API_KEY", "k-123")
	o := NewOptions()
	require.NoError(t, o.Complete())
	assert.Equal(t, "k-123", o.APIKey)
}
