// Package repository はセッションデータの永続化を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/socialprofile/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
// 実装はキー（セッションID）単位の読み書きがアトミックであることだけを保証すればよい。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Save はセッションのユーザー情報と有効期限を上書き保存する。
	Save(ctx context.Context, session *model.Session) error
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}
