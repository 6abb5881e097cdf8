package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/socialprofile/internal/model"
	"github.com/hitoshi/socialprofile/internal/repository"
)

// LoginRecorder はログイン結果とIdP呼び出しのレイテンシを記録する。
// metrics.Collectorが実装する。
type LoginRecorder interface {
	RecordLogin(provider, result string)
	RecordLogout()
	ObserveProviderLatency(provider string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordLogin(string, string)                   {}
func (noopRecorder) RecordLogout()                                {}
func (noopRecorder) ObserveProviderLatency(string, time.Duration) {}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はログイン、ログアウト、セッション取得のビジネスロジックを提供する。
type Service struct {
	registry    *Registry
	sessionRepo repository.SessionRepository
	recorder    LoginRecorder
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(
	registry *Registry,
	sessionRepo repository.SessionRepository,
	recorder LoginRecorder,
	config ServiceConfig,
) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		registry:    registry,
		sessionRepo: sessionRepo,
		recorder:    recorder,
		config:      config,
		now:         time.Now,
	}
}

// Providers はログイン可能なプロバイダーを表示順で返す。
func (s *Service) Providers() []model.Provider {
	return s.registry.Providers()
}

// GetLoginURL は指定プロバイダーの認可URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, err := s.registry.Lookup(provider)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// HandleCallback は認可コードを交換し、ユーザー情報を持つ新しいセッションを発行する。
// セッション固定攻撃を防ぐため、既存のセッションIDは引き継がずに破棄する。
// 失敗時は*model.AuthFailureを返し、既存のセッションは変更しない。
func (s *Service) HandleCallback(ctx context.Context, provider, code, previousSessionID string) (*model.Session, error) {
	p, err := s.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}
	name := string(p.Name())

	start := s.now()
	user, err := p.Exchange(ctx, code)
	s.recorder.ObserveProviderLatency(name, s.now().Sub(start))
	if err != nil {
		s.recorder.RecordLogin(name, model.FailureReason(err))
		return nil, err
	}

	session, err := s.createSession(ctx, user)
	if err != nil {
		s.recorder.RecordLogin(name, model.FailureSession)
		return nil, model.NewAuthFailure(p.Name(), model.FailureSession, err)
	}

	if previousSessionID != "" && previousSessionID != session.ID {
		if err := s.sessionRepo.DeleteByID(ctx, previousSessionID); err != nil {
			slog.Warn("failed to delete previous session",
				slog.String("error", err.Error()),
			)
		}
	}

	s.recorder.RecordLogin(name, "success")
	slog.Info("user logged in",
		slog.String("provider", name),
		slog.String("user_id", user.ID),
	)

	return session, nil
}

// Logout はセッションを破棄する。存在しないセッションの破棄も成功として扱う。
// セッションを持たない匿名のログアウトは何もせず、メトリクスにも記録しない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.recorder.RecordLogout()
	slog.Info("user logged out")
	return nil
}

// GetSession はセッションIDからセッションを取得する。存在しないか期限切れの場合はnilを返す。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// StartAnonymousSession はユーザー情報を持たないセッションを発行する。
func (s *Service) StartAnonymousSession(ctx context.Context) (*model.Session, error) {
	session, err := s.createSession(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create anonymous session: %w", err)
	}
	return session, nil
}

// TouchSession はセッションの有効期限を延長して保存し直す。
func (s *Service) TouchSession(ctx context.Context, session *model.Session) error {
	session.ExpiresAt = s.now().Add(s.maxAge())
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Service) maxAge() time.Duration {
	return time.Duration(s.config.SessionMaxAge) * time.Second
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, user *model.UserRecord) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		User:      user,
		ExpiresAt: now.Add(s.maxAge()),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
