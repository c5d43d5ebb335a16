// Package cleanup は期限切れの資格情報を削除するジョブを提供する。
// 読み取り時にも期限切れは無視されるが、レコード自体は残るため
// 定期的なバッチで物理削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/libraryfront/internal/metrics"
)

// DefaultInterval はジョブの実行間隔のデフォルト値。
const DefaultInterval = time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Purger は期限切れの資格情報を削除し、削除件数を返す。
// credential.MemoryRepo とSQLPurgerが実装する。
type Purger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLPurger はclient_credentialsテーブルから期限切れのレコードを削除する。
type SQLPurger struct {
	db Executor
	// Grace は期限切れから削除までの猶予。時計のずれで直前に保存した
	// レコードを消さないよう、デフォルトで数分残す。
	Grace time.Duration
}

// NewSQLPurger は新しいSQLPurgerを生成する。
func NewSQLPurger(db Executor) *SQLPurger {
	return &SQLPurger{
		db:    db,
		Grace: 5 * time.Minute,
	}
}

// DeleteExpired はexpires_atが猶予を超えて過去のレコードを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (p *SQLPurger) DeleteExpired(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d seconds", int64(p.Grace.Seconds()))

	query := `DELETE FROM client_credentials WHERE expires_at < now() - $1::interval`
	result, err := p.db.ExecContext(ctx, query, interval)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired credentials: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return deleted, nil
}

// CleanupJob は期限切れの資格情報の定期削除ジョブ。
type CleanupJob struct {
	purger  Purger
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(purger Purger, collector metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		purger:  purger,
		metrics: collector,
		logger:  logger,
	}
}

// Run は期限切れの資格情報を1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.purger.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("資格情報クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("資格情報クリーンアップの実行に失敗: %w", err)
	}

	j.metrics.RecordCredentialsPurged(deleted)
	j.logger.Info("資格情報クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以降はintervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	// 失敗はRun内でログ済み。次の周期で再試行する
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
