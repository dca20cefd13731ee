package docqa

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

func TestOptionsDefaults(t *testing.T) {
	opts := NewOptions()
	require.NoError(t, opts.Complete())
	require.NoError(t, opts.Validate())

	assert.Equal(t, "enterprise-document-kb", opts.KB.IndexName)
	assert.Equal(t, "enterprise_document_assistant", opts.KB.AgentName)
	assert.Equal(t, ":8080", opts.Server.Addr)
	assert.Equal(t, 60*time.Second, opts.Server.QueryTimeout)
	assert.Equal(t, 1, opts.Staging.MinUploaded)
}

func TestOptionsFlags(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--kb.index-name=hr-kb",
		"--staging.extensions=MD,.txt,md",
		"--staging.min-uploaded=3",
		"--sync.timeout=5m",
		"--server.addr=:9090",
		"--minio.bucket=corp-docs",
	}))
	require.NoError(t, opts.Complete())
	require.NoError(t, opts.Validate())

	assert.Equal(t, "hr-kb", opts.KB.IndexName)
	assert.Equal(t, []string{".md", ".txt"}, opts.Staging.Extensions)
	assert.Equal(t, ":9090", opts.Server.Addr)

	cfg := opts.ProvisionConfig()
	assert.Equal(t, "corp-docs", cfg.Staging.Bucket)
	assert.Equal(t, 3, cfg.Staging.MinUploaded)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Timeout)
	assert.Equal(t, "hr-kb", cfg.IndexName)
	assert.NotEmpty(t, cfg.Agent.Instructions)
}

func TestOptionsValidateAggregates(t *testing.T) {
	opts := NewOptions()
	opts.KB.IndexName = " "
	opts.Staging.MinUploaded = 0
	opts.Sync.Multiplier = 0.5
	opts.Server.Mode = "production"

	err := opts.Validate()
	require.Error(t, err)

	var agg utilerrors.Aggregate
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors(), 4)
	assert.Contains(t, err.Error(), "kb.index-name")
	assert.Contains(t, err.Error(), "server.mode")
}

func TestOptionsSessionStoreConfig(t *testing.T) {
	opts := NewOptions()
	opts.Session.TTL = time.Hour
	opts.Session.KeyPrefix = "test:"

	cfg := opts.SessionStoreConfig()
	assert.Equal(t, time.Hour, cfg.TTL)
	assert.Equal(t, "test:", cfg.KeyPrefix)
}

func TestOptionsSessionEviction(t *testing.T) {
	opts := NewOptions()
	assert.Equal(t, 24*time.Hour, opts.Session.IdleTimeout)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--session.idle-timeout=2h", "--session.evict-interval=0s"}))
	require.NoError(t, opts.Complete())

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.evict-interval")

	opts.Session.IdleTimeout = 0
	assert.NoError(t, opts.Validate())
}
