// Package notice はブラウザ単位の通知（トースト）キューを提供する。
// バックエンドクライアントや認証マネージャーが積んだ通知を、
// ページ描画時または GET /auth/notices で取り出す。
package notice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/libraryfront/internal/credential"
	"github.com/hitoshi/libraryfront/internal/metrics"
	"github.com/hitoshi/libraryfront/internal/model"
	"github.com/hitoshi/libraryfront/internal/security"
)

// Notifier は通知を積むためのインターフェース。
// 通知先のクライアントはコンテキストのクライアントIDで決まる。
type Notifier interface {
	Notify(ctx context.Context, n model.Notice)
}

// BoardConfig は通知キューの設定を保持する。
type BoardConfig struct {
	Capacity        int           // クライアントあたりの最大通知数。超えた分は古い順に捨てる
	IdleTTL         time.Duration // 最終更新からこの時間を過ぎたキューは破棄する
	CleanupInterval time.Duration
}

// DefaultBoardConfig はデフォルトの通知キュー設定を返す。
func DefaultBoardConfig() BoardConfig {
	return BoardConfig{
		Capacity:        20,
		IdleTTL:         10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

type queue struct {
	items     []model.Notice
	updatedAt time.Time
}

// Board はクライアントごとの通知キュー。
type Board struct {
	config    BoardConfig
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	mu     sync.Mutex
	queues map[string]*queue

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBoard は新しいBoardを生成する。
// バックグラウンドで放置されたキューのクリーンアップを開始する。
func NewBoard(config BoardConfig, sanitizer security.TextSanitizer, collector metrics.MetricsCollector, logger *slog.Logger) *Board {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Board{
		config:    config,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		queues:    make(map[string]*queue),
		stopCh:    make(chan struct{}),
	}

	go b.cleanupLoop()

	return b
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (b *Board) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Notify はコンテキストのクライアントに通知を積む。
// クライアントIDが無いコンテキスト（ワーカーなど）では何もしない。
func (b *Board) Notify(ctx context.Context, n model.Notice) {
	clientID, ok := credential.ClientIDFromContext(ctx)
	if !ok {
		b.logger.Debug("notice dropped: no client in context",
			slog.String("level", n.Level),
		)
		return
	}
	b.Push(clientID, n)
}

// Push は指定クライアントに通知を積む。
// メッセージはサニタイズしてから保存し、空になった場合は捨てる。
// 直前の通知とレベル・メッセージ・フィールドが全て同じ場合は重複として積まない。
func (b *Board) Push(clientID string, n model.Notice) {
	n.Message = b.sanitizer.Sanitize(n.Message)
	if n.Message == "" || clientID == "" {
		return
	}
	if n.Level == "" {
		n.Level = model.NoticeInfo
	}

	b.mu.Lock()
	q, ok := b.queues[clientID]
	if !ok {
		q = &queue{}
		b.queues[clientID] = q
	}
	q.updatedAt = time.Now()
	if last := len(q.items) - 1; last >= 0 && q.items[last] == n {
		b.mu.Unlock()
		return
	}
	q.items = append(q.items, n)
	if over := len(q.items) - b.config.Capacity; b.config.Capacity > 0 && over > 0 {
		q.items = append(q.items[:0], q.items[over:]...)
	}
	b.mu.Unlock()

	b.metrics.RecordNotice(n.Level)
}

// Drain はクライアントの通知を古い順に取り出し、キューを空にする。
// 通知が無い場合は空スライスを返す。
func (b *Board) Drain(clientID string) []model.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[clientID]
	if !ok {
		return []model.Notice{}
	}
	delete(b.queues, clientID)
	return q.items
}

// Len はクライアントの未読通知数を返す。
func (b *Board) Len(clientID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[clientID]; ok {
		return len(q.items)
	}
	return 0
}

// cleanupLoop はバックグラウンドで放置されたキューを定期的に削除する。
func (b *Board) cleanupLoop() {
	interval := b.config.CleanupInterval
	if interval <= 0 {
		interval = DefaultBoardConfig().CleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.cleanup(time.Now())
		case <-b.stopCh:
			return
		}
	}
}

// cleanup は最終更新がIdleTTLを超えたキューを削除する。
func (b *Board) cleanup(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for clientID, q := range b.queues {
		if now.Sub(q.updatedAt) > b.config.IdleTTL {
			delete(b.queues, clientID)
		}
	}
}

var _ Notifier = (*Board)(nil)
