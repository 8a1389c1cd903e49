// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/chatline/internal/model"
	"github.com/hitoshi/chatline/internal/repository"
	"github.com/hitoshi/chatline/internal/security"
)

// Service はユーザー管理のサービス層。
// ユーザー名の検証と大文字小文字を区別しない一意性のビジネスルールを持つ。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
	}
}

// validateUsername はユーザー名を検証し、正規化済みの名前を返す。
func (s *Service) validateUsername(username string) (string, error) {
	name := strings.TrimSpace(s.sanitizer.Sanitize(username))
	if name == "" {
		return "", model.NewInvalidUserNameError("ユーザー名が空です")
	}
	// 長さ制限はバイト数ではなく文字数で判定する
	length := utf8.RuneCountInString(name)
	if length < model.UserNameMinLength || length > model.UserNameMaxLength {
		return "", model.NewInvalidUserNameError(name)
	}
	return name, nil
}

// Create はユーザーを作成する。
// 大文字小文字を区別しない比較で名前が重複する場合はDUPLICATE_USERNAMEエラー。
func (s *Service) Create(ctx context.Context, username string) (*model.User, error) {
	name, err := s.validateUsername(username)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.Create(ctx, name)
	if errors.Is(err, repository.ErrDuplicateUserName) {
		return nil, model.NewDuplicateUserNameError(name)
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	return user, nil
}

// Get は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// GetByUsername はユーザー名でユーザーを検索する（大文字小文字を区別しない）。
// 見つからない場合はnilを返す。
func (s *Service) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	return user, nil
}

// List は全ユーザーを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Rename はユーザー名を変更する。IDは維持される。
// ユーザーが存在しない場合はUSER_NOT_FOUND、名前が重複する場合は
// DUPLICATE_USERNAMEエラーを返す。
func (s *Service) Rename(ctx context.Context, id int64, username string) (*model.User, error) {
	name, err := s.validateUsername(username)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.UpdateUsername(ctx, id, name)
	if errors.Is(err, repository.ErrDuplicateUserName) {
		return nil, model.NewDuplicateUserNameError(name)
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー名の変更に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}

	return user, nil
}

// Delete は指定IDのユーザーを削除する。
// 実際に削除された場合はtrueを、存在しなかった場合はfalseを返す。
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.userRepo.DeleteByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	return deleted, nil
}
