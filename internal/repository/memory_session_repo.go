package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/socialprofile/internal/model"
)

// MemorySessionRepo はプロセス内メモリを使用したセッションリポジトリ。
// 単一プロセス構成のデフォルトストア。再起動でセッションは失われる。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session

	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
// cleanupIntervalが正の場合、バックグラウンドで期限切れセッションを定期的に削除する。
func NewMemorySessionRepo(cleanupInterval time.Duration) *MemorySessionRepo {
	r := &MemorySessionRepo{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go r.cleanupLoop(cleanupInterval)
	}

	return r
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (r *MemorySessionRepo) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session.Clone()
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok || s.IsExpired(r.now()) {
		return nil, nil
	}
	return s.Clone(), nil
}

// Save はセッションを上書き保存する。
func (r *MemorySessionRepo) Save(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session.Clone()
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// Len は保持しているセッション数を返す。期限切れで未削除のものも含む。
func (r *MemorySessionRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *MemorySessionRepo) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.DeleteExpired()
		case <-r.stopCh:
			return
		}
	}
}

// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
func (r *MemorySessionRepo) DeleteExpired() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, s := range r.sessions {
		if s.IsExpired(now) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)

// Ping は常に成功する。
func (r *MemorySessionRepo) Ping(_ context.Context) error {
	return nil
}
