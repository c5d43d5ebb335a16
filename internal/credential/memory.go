package credential

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/libraryfront/internal/model"
	"github.com/hitoshi/libraryfront/internal/repository"
)

// MemoryRepo はプロセス内メモリに資格情報を保持するリポジトリ。
// CREDENTIAL_STORE=memory の単一インスタンス構成とテストで使用する。
type MemoryRepo struct {
	mu      sync.RWMutex
	records map[string]model.Credential
	now     func() time.Time
}

// NewMemoryRepo はMemoryRepoを生成する。
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		records: make(map[string]model.Credential),
		now:     time.Now,
	}
}

// Save は資格情報を保存する。
func (r *MemoryRepo) Save(_ context.Context, clientID string, cred *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[clientID] = *cred
	return nil
}

// FindByClientID は資格情報を取得する。期限切れの場合はnilを返す。
func (r *MemoryRepo) FindByClientID(_ context.Context, clientID string) (*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.records[clientID]
	if !ok {
		return nil, nil
	}
	if !cred.ExpiresAt.IsZero() && !cred.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return &cred, nil
}

// DeleteByClientID は資格情報を削除する。
func (r *MemoryRepo) DeleteByClientID(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, clientID)
	return nil
}

// DeleteExpired は期限切れの資格情報を削除し、削除件数を返す。
func (r *MemoryRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var n int64
	for id, cred := range r.records {
		if !cred.ExpiresAt.IsZero() && !cred.ExpiresAt.After(now) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// Len は保持しているレコード数を返す。
func (r *MemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// compile-time interface check
var _ repository.CredentialRepository = (*MemoryRepo)(nil)
