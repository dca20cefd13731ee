package biz

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
	"github.com/asakusa/enterprise-rag/pkg/infra/resilience"
)

// errSyncFailed 网关报告同步任务失败。
var errSyncFailed = stderrors.New("synchronization job reported failure")

// waitForSync 以指数退避轮询同步任务，直到 Synced、Failed 或超时。
// 单次状态查询出错视为暂时性问题，继续轮询直到超时。
func waitForSync(
	ctx context.Context,
	svc store.KnowledgeService,
	idx *model.KnowledgeIndex,
	jobID string,
	cfg resilience.PollConfig,
	m *metrics.DocQAMetrics,
) error {
	var lastErr error
	err := resilience.PollUntil(ctx, cfg, func(ctx context.Context) (bool, error) {
		m.RecordSyncPoll()
		status, err := svc.SyncStatus(ctx, idx.ID, idx.DataSourceID, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			lastErr = err
			logger.Warnw("sync status check failed", "index_id", idx.ID, "job_id", jobID, "error", err.Error())
			return false, nil
		}

		switch status {
		case model.IndexSynced:
			return true, nil
		case model.IndexFailed:
			return false, errSyncFailed
		default:
			logger.Debugw("index still syncing", "index_id", idx.ID, "job_id", jobID, "status", string(status))
			return false, nil
		}
	})

	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, resilience.ErrPollTimeout), stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		if lastErr != nil {
			return errors.ErrSyncTimeout.WithCause(fmt.Errorf("last status check: %w", lastErr))
		}
		return errors.ErrSyncTimeout.WithMessagef("index %s not synced within %s", idx.ID, cfg.Timeout)
	case stderrors.Is(err, errSyncFailed):
		return errors.ErrProvisioningFailed.WithCause(err)
	default:
		return err
	}
}
