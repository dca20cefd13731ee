package biz

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
	"github.com/asakusa/enterprise-rag/pkg/infra/pool"
	"github.com/asakusa/enterprise-rag/pkg/infra/resilience"
)

// DefaultExtensions 默认允许上传的文档扩展名。
var DefaultExtensions = []string{".md", ".txt", ".pdf", ".docx"}

// StagerConfig 文档暂存配置。
type StagerConfig struct {
	// Bucket 目标存储桶。
	Bucket string
	// Prefix 对象键前缀。
	Prefix string
	// Extensions 允许的扩展名（含点，不区分大小写）。
	Extensions []string
	// MinUploaded 至少成功上传的文件数，低于该值视为失败。
	MinUploaded int
	// Concurrency 并发上传数。
	Concurrency int
	// UploadAttempts 单个文件的最大尝试次数，默认 1。
	UploadAttempts int
	// RetryDelay 首次重试前的等待，按 2 倍递增。
	RetryDelay time.Duration
}

// Stager 将本地文档树上传到对象存储。
type Stager struct {
	objects store.ObjectStore
	config  StagerConfig
	allowed map[string]struct{}
	metrics *metrics.DocQAMetrics
}

// NewStager 创建暂存器。
func NewStager(objects store.ObjectStore, config StagerConfig, m *metrics.DocQAMetrics) *Stager {
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultExtensions
	}
	if config.MinUploaded < 1 {
		config.MinUploaded = 1
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.UploadAttempts < 1 {
		config.UploadAttempts = 1
	}
	if m == nil {
		m = metrics.Default()
	}

	allowed := make(map[string]struct{}, len(config.Extensions))
	for _, ext := range config.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	return &Stager{objects: objects, config: config, allowed: allowed, metrics: m}
}

// Collect 遍历 root，返回扩展名合格的文档及被跳过的文件数。
func (s *Stager) Collect(root string) ([]model.Document, int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, errors.ErrInvalidDirectory.WithCause(err)
	}
	if !info.IsDir() {
		return nil, 0, errors.ErrInvalidDirectory.WithMessagef("%s is not a directory", root)
	}

	var docs []model.Document
	skipped := 0
	seen := make(map[string]string)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warnw("skipping unreadable path", "path", path, "error", err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := s.allowed[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			skipped++
			return nil
		}
		key := s.remoteKey(d.Name())
		if prev, ok := seen[key]; ok {
			// 同名文件会覆盖先前上传的对象
			logger.Warnw("duplicate document name, later file wins",
				"key", key, "previous", prev, "path", path)
		}
		seen[key] = path
		docs = append(docs, model.Document{
			LocalPath: path,
			RemoteKey: key,
		})
		return nil
	})
	if err != nil {
		return nil, 0, errors.ErrInvalidDirectory.WithCause(err)
	}
	return docs, skipped, nil
}

// remoteKey 对象键为 前缀 + 文件名，子目录结构不保留。
func (s *Stager) remoteKey(name string) string {
	prefix := strings.TrimLeft(s.config.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + name
}

// Stage 上传 root 下所有合格文档。单个文件失败只记录日志，
// 成功数低于 MinUploaded 时返回 ErrNoDocuments。
func (s *Stager) Stage(ctx context.Context, root string) (*model.StagingReport, error) {
	docs, skipped, err := s.Collect(root)
	if err != nil {
		return nil, err
	}

	report := &model.StagingReport{Eligible: len(docs), Skipped: skipped}
	if len(docs) > 0 {
		s.upload(ctx, docs, report)
		sort.Strings(report.Failed)
	}

	if len(report.Failed) > 0 {
		logger.Warnw("partial upload failure",
			"code", errors.ErrPartialUpload.Code,
			"uploaded", report.Uploaded,
			"failed", len(report.Failed),
		)
	}
	logger.Infow("staging finished",
		"root", root,
		"eligible", report.Eligible,
		"uploaded", report.Uploaded,
		"skipped", report.Skipped,
	)

	if report.Uploaded < s.config.MinUploaded {
		return report, errors.ErrNoDocuments.WithMessagef(
			"%d of %d eligible documents uploaded, at least %d required",
			report.Uploaded, report.Eligible, s.config.MinUploaded)
	}
	return report, nil
}

func (s *Stager) upload(ctx context.Context, docs []model.Document, report *model.StagingReport) {
	var mu sync.Mutex
	record := func(doc model.Document, err error) {
		s.metrics.RecordUpload(err)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed = append(report.Failed, doc.LocalPath)
			return
		}
		report.Uploaded++
	}

	tasks := make([]func(), len(docs))
	for i, doc := range docs {
		doc := doc
		tasks[i] = func() {
			if err := ctx.Err(); err != nil {
				record(doc, err)
				return
			}
			err := s.put(ctx, doc)
			if err != nil {
				logger.Warnw("document upload failed",
					"path", doc.LocalPath,
					"key", doc.RemoteKey,
					"error", err.Error(),
				)
			} else {
				logger.Debugw("document uploaded", "path", doc.LocalPath, "uri", s.objects.Location(s.config.Bucket, doc.RemoteKey))
			}
			record(doc, err)
		}
	}

	p, err := pool.NewPool("staging", &pool.Config{Capacity: s.config.Concurrency})
	if err != nil {
		logger.Warnw("staging pool unavailable, uploading sequentially", "error", err.Error())
		report.Workers = 1
		for _, task := range tasks {
			task()
		}
		return
	}
	defer p.Release()
	p.Run(tasks)

	st := p.Stats()
	report.Workers = p.Cap()
	report.InlineUploads = st.Inline
	logger.Debugw("staging pool drained",
		"pool", p.Name(),
		"capacity", p.Cap(),
		"submitted", st.Submitted,
		"inline", st.Inline,
		"panics", st.Panics,
	)
}

func (s *Stager) put(ctx context.Context, doc model.Document) error {
	if s.config.UploadAttempts == 1 {
		return s.objects.PutObject(ctx, doc.LocalPath, s.config.Bucket, doc.RemoteKey)
	}
	return resilience.RetryWithBackoff(ctx, &resilience.RetryConfig{
		MaxAttempts:  s.config.UploadAttempts,
		InitialDelay: s.config.RetryDelay,
		MaxDelay:     10 * s.config.RetryDelay,
		Multiplier:   2,
	}, func(ctx context.Context) error {
		return s.objects.PutObject(ctx, doc.LocalPath, s.config.Bucket, doc.RemoteKey)
	})
}

// Location 返回暂存前缀对应的存储 URI。
func (s *Stager) Location() string {
	return s.objects.Location(s.config.Bucket, s.remoteKey(""))
}
