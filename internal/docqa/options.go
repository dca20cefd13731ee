// Package docqa assembles the document Q&A application: options, server and CLI commands.
package docqa

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/asakusa/enterprise-rag/internal/docqa/biz"
	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/pkg/infra/resilience"
	"github.com/asakusa/enterprise-rag/pkg/options"
	gatewayopts "github.com/asakusa/enterprise-rag/pkg/options/gateway"
	logopts "github.com/asakusa/enterprise-rag/pkg/options/logger"
	minioopts "github.com/asakusa/enterprise-rag/pkg/options/minio"
	redisopts "github.com/asakusa/enterprise-rag/pkg/options/redis"
	tracingopts "github.com/asakusa/enterprise-rag/pkg/options/tracing"
)

// Options contains all docqa options.
type Options struct {
	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Gateway contains the knowledge gateway connection.
	Gateway *gatewayopts.Options `json:"gateway" mapstructure:"gateway"`

	// Minio contains the document staging bucket connection.
	Minio *minioopts.Options `json:"minio" mapstructure:"minio"`

	// Redis contains the optional session store connection.
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`

	// Tracing contains OpenTelemetry export settings.
	Tracing *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// KB contains knowledge index and agent naming.
	KB *KBOptions `json:"kb" mapstructure:"kb"`

	// Staging contains document upload settings.
	Staging *StagingOptions `json:"staging" mapstructure:"staging"`

	// Sync contains index synchronization polling.
	Sync *SyncOptions `json:"sync" mapstructure:"sync"`

	// Session contains session persistence settings.
	Session *SessionOptions `json:"session" mapstructure:"session"`

	// Server contains the HTTP API settings.
	Server *ServerOptions `json:"server" mapstructure:"server"`
}

// KBOptions 知识库与 Agent 配置。
type KBOptions struct {
	IndexName         string `json:"index-name" mapstructure:"index-name"`
	IndexDescription  string `json:"index-description" mapstructure:"index-description"`
	AgentName         string `json:"agent-name" mapstructure:"agent-name"`
	ModelID           string `json:"model-id" mapstructure:"model-id"`
	AgentRole         string `json:"agent-role" mapstructure:"agent-role"`
	AgentGoal         string `json:"agent-goal" mapstructure:"agent-goal"`
	AgentInstructions string `json:"agent-instructions" mapstructure:"agent-instructions"`
}

// StagingOptions 文档暂存配置。
type StagingOptions struct {
	// Documents 默认文档目录。
	Documents   string   `json:"documents" mapstructure:"documents"`
	Prefix      string   `json:"prefix" mapstructure:"prefix"`
	Extensions  []string `json:"extensions" mapstructure:"extensions"`
	MinUploaded int      `json:"min-uploaded" mapstructure:"min-uploaded"`
	Concurrency int      `json:"concurrency" mapstructure:"concurrency"`
	// UploadAttempts 单文件上传尝试次数。
	UploadAttempts int           `json:"upload-attempts" mapstructure:"upload-attempts"`
	RetryDelay     time.Duration `json:"retry-delay" mapstructure:"retry-delay"`
	// CreateBucket 存储桶不存在时自动创建。
	CreateBucket bool `json:"create-bucket" mapstructure:"create-bucket"`
}

// SyncOptions 同步轮询配置。
type SyncOptions struct {
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	InitialInterval time.Duration `json:"initial-interval" mapstructure:"initial-interval"`
	MaxInterval     time.Duration `json:"max-interval" mapstructure:"max-interval"`
	Multiplier      float64       `json:"multiplier" mapstructure:"multiplier"`
}

// SessionOptions 会话配置。TTL 与 KeyPrefix 仅在配置了 Redis 时生效。
type SessionOptions struct {
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix     string        `json:"key-prefix" mapstructure:"key-prefix"`
	IdleTimeout   time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	EvictInterval time.Duration `json:"evict-interval" mapstructure:"evict-interval"`
}

// ServerOptions HTTP 服务配置。
type ServerOptions struct {
	Addr             string        `json:"addr" mapstructure:"addr"`
	Mode             string        `json:"mode" mapstructure:"mode"`
	QueryTimeout     time.Duration `json:"query-timeout" mapstructure:"query-timeout"`
	ProvisionTimeout time.Duration `json:"provision-timeout" mapstructure:"provision-timeout"`
	ShutdownTimeout  time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	minioOpts := minioopts.NewOptions()
	minioOpts.Bucket = "enterprise-rag-documents"

	tmpl := biz.DefaultAgentTemplate()
	poll := resilience.DefaultPollConfig()

	return &Options{
		Log:     logopts.NewOptions(),
		Gateway: gatewayopts.NewOptions(),
		Minio:   minioOpts,
		Redis:   redisopts.NewOptions(),
		Tracing: tracingopts.NewOptions(),
		KB: &KBOptions{
			IndexName:         "enterprise-document-kb",
			IndexDescription:  "Enterprise internal document knowledge base",
			AgentName:         "enterprise_document_assistant",
			ModelID:           "us.amazon.nova-pro-v1:0",
			AgentRole:         tmpl.Role,
			AgentGoal:         tmpl.Goal,
			AgentInstructions: tmpl.Instructions,
		},
		Staging: &StagingOptions{
			Documents:      "./documents",
			Prefix:         "enterprise_documents/",
			Extensions:     append([]string(nil), biz.DefaultExtensions...),
			MinUploaded:    1,
			Concurrency:    4,
			UploadAttempts: 2,
			RetryDelay:     500 * time.Millisecond,
		},
		Sync: &SyncOptions{
			Timeout:         poll.Timeout,
			InitialInterval: poll.InitialInterval,
			MaxInterval:     poll.MaxInterval,
			Multiplier:      poll.Multiplier,
		},
		Session: &SessionOptions{
			TTL:           7 * 24 * time.Hour,
			KeyPrefix:     "docqa:session:",
			IdleTimeout:   24 * time.Hour,
			EvictInterval: 10 * time.Minute,
		},
		Server: &ServerOptions{
			Addr:             ":8080",
			Mode:             gin.ReleaseMode,
			QueryTimeout:     60 * time.Second,
			ProvisionTimeout: 30 * time.Minute,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

func (o *Options) groups() []options.IOptions {
	return []options.IOptions{o.Log, o.Gateway, o.Minio, o.Redis, o.Tracing}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	for _, g := range o.groups() {
		g.AddFlags(fs)
	}
	o.addKBFlags(fs)
	o.addStagingFlags(fs)
	o.addSyncFlags(fs)
	o.addSessionFlags(fs)
	o.addServerFlags(fs)
}

func (o *Options) addKBFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.KB.IndexName, "kb.index-name", o.KB.IndexName, "Knowledge index name (looked up before creating)")
	fs.StringVar(&o.KB.IndexDescription, "kb.index-description", o.KB.IndexDescription, "Knowledge index description")
	fs.StringVar(&o.KB.AgentName, "kb.agent-name", o.KB.AgentName, "Agent name (looked up before creating)")
	fs.StringVar(&o.KB.ModelID, "kb.model-id", o.KB.ModelID, "Foundation model used for generation")
	fs.StringVar(&o.KB.AgentRole, "kb.agent-role", o.KB.AgentRole, "Agent role")
	fs.StringVar(&o.KB.AgentGoal, "kb.agent-goal", o.KB.AgentGoal, "Agent goal")
	fs.StringVar(&o.KB.AgentInstructions, "kb.agent-instructions", o.KB.AgentInstructions, "Agent instructions")
}

func (o *Options) addStagingFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Staging.Documents, "staging.documents", o.Staging.Documents, "Local documents directory")
	fs.StringVar(&o.Staging.Prefix, "staging.prefix", o.Staging.Prefix, "Object key prefix for staged documents")
	fs.StringSliceVar(&o.Staging.Extensions, "staging.extensions", o.Staging.Extensions, "Eligible file extensions")
	fs.IntVar(&o.Staging.MinUploaded, "staging.min-uploaded", o.Staging.MinUploaded, "Minimum successful uploads to continue provisioning")
	fs.IntVar(&o.Staging.Concurrency, "staging.concurrency", o.Staging.Concurrency, "Concurrent uploads")
	fs.IntVar(&o.Staging.UploadAttempts, "staging.upload-attempts", o.Staging.UploadAttempts, "Attempts per document upload")
	fs.DurationVar(&o.Staging.RetryDelay, "staging.retry-delay", o.Staging.RetryDelay, "Delay before the first upload retry")
	fs.BoolVar(&o.Staging.CreateBucket, "staging.create-bucket", o.Staging.CreateBucket, "Create the bucket when it does not exist")
}

func (o *Options) addSyncFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.Sync.Timeout, "sync.timeout", o.Sync.Timeout, "Maximum time to wait for index synchronization")
	fs.DurationVar(&o.Sync.InitialInterval, "sync.initial-interval", o.Sync.InitialInterval, "First status poll interval")
	fs.DurationVar(&o.Sync.MaxInterval, "sync.max-interval", o.Sync.MaxInterval, "Status poll interval cap")
	fs.Float64Var(&o.Sync.Multiplier, "sync.multiplier", o.Sync.Multiplier, "Status poll interval growth factor")
}

func (o *Options) addSessionFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.Session.TTL, "session.ttl", o.Session.TTL, "Session snapshot TTL in Redis (0 keeps forever)")
	fs.StringVar(&o.Session.KeyPrefix, "session.key-prefix", o.Session.KeyPrefix, "Redis key prefix for session snapshots")
	fs.DurationVar(&o.Session.IdleTimeout, "session.idle-timeout", o.Session.IdleTimeout, "Drop sessions from memory after this long without activity (0 disables)")
	fs.DurationVar(&o.Session.EvictInterval, "session.evict-interval", o.Session.EvictInterval, "How often idle sessions are evicted")
}

func (o *Options) addServerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Server.Addr, "server.addr", o.Server.Addr, "HTTP listen address")
	fs.StringVar(&o.Server.Mode, "server.mode", o.Server.Mode, "Gin mode (debug|release|test)")
	fs.DurationVar(&o.Server.QueryTimeout, "server.query-timeout", o.Server.QueryTimeout, "Per-question timeout")
	fs.DurationVar(&o.Server.ProvisionTimeout, "server.provision-timeout", o.Server.ProvisionTimeout, "Provisioning request timeout")
	fs.DurationVar(&o.Server.ShutdownTimeout, "server.shutdown-timeout", o.Server.ShutdownTimeout, "Graceful shutdown timeout")
}

// Complete completes the options.
func (o *Options) Complete() error {
	for _, g := range o.groups() {
		if err := g.Complete(); err != nil {
			return err
		}
	}
	o.Staging.Extensions = normalizeExtensions(o.Staging.Extensions)
	if o.Staging.Concurrency <= 0 {
		o.Staging.Concurrency = 1
	}
	return nil
}

// Validate validates the options and reports every problem at once.
func (o *Options) Validate() error {
	var errs []error
	for _, g := range o.groups() {
		errs = append(errs, g.Validate())
	}

	if strings.TrimSpace(o.KB.IndexName) == "" {
		errs = append(errs, fmt.Errorf("kb.index-name must not be empty"))
	}
	if strings.TrimSpace(o.KB.AgentName) == "" {
		errs = append(errs, fmt.Errorf("kb.agent-name must not be empty"))
	}
	if strings.TrimSpace(o.KB.ModelID) == "" {
		errs = append(errs, fmt.Errorf("kb.model-id must not be empty"))
	}
	if o.Staging.MinUploaded < 1 {
		errs = append(errs, fmt.Errorf("staging.min-uploaded must be at least 1"))
	}
	if o.Staging.UploadAttempts < 1 {
		errs = append(errs, fmt.Errorf("staging.upload-attempts must be at least 1"))
	}
	if len(o.Staging.Extensions) == 0 {
		errs = append(errs, fmt.Errorf("staging.extensions must not be empty"))
	}
	if o.Sync.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.timeout must be positive"))
	}
	if o.Sync.InitialInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.initial-interval must be positive"))
	}
	if o.Sync.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("sync.multiplier must be at least 1"))
	}
	if o.Session.TTL < 0 {
		errs = append(errs, fmt.Errorf("session.ttl must not be negative"))
	}
	if o.Session.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.idle-timeout must not be negative"))
	}
	if o.Session.IdleTimeout > 0 && o.Session.EvictInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.evict-interval must be positive when session.idle-timeout is set"))
	}
	switch o.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		errs = append(errs, fmt.Errorf("server.mode %q is not one of debug, release, test", o.Server.Mode))
	}
	if o.Server.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.query-timeout must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// ProvisionConfig converts the options into the provisioning configuration.
func (o *Options) ProvisionConfig() biz.ProvisionConfig {
	return biz.ProvisionConfig{
		Staging: biz.StagerConfig{
			Bucket:         o.Minio.Bucket,
			Prefix:         o.Staging.Prefix,
			Extensions:     o.Staging.Extensions,
			MinUploaded:    o.Staging.MinUploaded,
			Concurrency:    o.Staging.Concurrency,
			UploadAttempts: o.Staging.UploadAttempts,
			RetryDelay:     o.Staging.RetryDelay,
		},
		IndexName:        o.KB.IndexName,
		IndexDescription: o.KB.IndexDescription,
		AgentName:        o.KB.AgentName,
		ModelID:          o.KB.ModelID,
		Agent: biz.AgentTemplate{
			Role:         o.KB.AgentRole,
			Goal:         o.KB.AgentGoal,
			Instructions: o.KB.AgentInstructions,
		},
		Sync: resilience.PollConfig{
			Timeout:         o.Sync.Timeout,
			InitialInterval: o.Sync.InitialInterval,
			MaxInterval:     o.Sync.MaxInterval,
			Multiplier:      o.Sync.Multiplier,
		},
	}
}

// SessionStoreConfig converts the session options for the Redis store.
func (o *Options) SessionStoreConfig() *store.RedisSessionStoreConfig {
	return &store.RedisSessionStoreConfig{
		TTL:       o.Session.TTL,
		KeyPrefix: o.Session.KeyPrefix,
	}
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if seen[ext] {
			continue
		}
		seen[ext] = true
		out = append(out, ext)
	}
	return out
}
