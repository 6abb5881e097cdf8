package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/socialprofile/internal/model"
)

// sessionPayload はRedisに保存するセッションのJSON表現。
type sessionPayload struct {
	ID        string            `json:"id"`
	User      *model.UserRecord `json:"user"`
	ExpiresAt int64             `json:"expires_at"`
	CreatedAt int64             `json:"created_at"`
}

func encodeSession(s *model.Session) ([]byte, error) {
	data, err := json.Marshal(sessionPayload{
		ID:        s.ID,
		User:      s.User,
		ExpiresAt: s.ExpiresAt.Unix(),
		CreatedAt: s.CreatedAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*model.Session, error) {
	var p sessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &model.Session{
		ID:        p.ID,
		User:      p.User,
		ExpiresAt: time.Unix(p.ExpiresAt, 0),
		CreatedAt: time.Unix(p.CreatedAt, 0),
	}, nil
}

// encodeUser はPostgresのdata列に保存するUserRecordのJSONを返す。
// 未ログインのセッションはJSONのnullとして保存する。
func encodeUser(u *model.UserRecord) ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user record: %w", err)
	}
	return data, nil
}

func decodeUser(data []byte) (*model.UserRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var u *model.UserRecord
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user record: %w", err)
	}
	return u, nil
}
