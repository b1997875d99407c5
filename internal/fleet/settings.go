package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fleetdeploy/internal/database"
	"fleetdeploy/pkg/models"
)

const githubTokenKey = "github_token"

// SettingsService stores the GitHub token. A token saved through the API
// takes precedence over the one from configuration.
type SettingsService struct {
	settings      database.SettingRepository
	fallbackToken string
}

// NewSettingsService creates a settings service
func NewSettingsService(settings database.SettingRepository, fallbackToken string) *SettingsService {
	return &SettingsService{settings: settings, fallbackToken: fallbackToken}
}

// GitHubToken returns the effective token, or "" when none is configured
func (s *SettingsService) GitHubToken(ctx context.Context) (string, error) {
	token, err := s.settings.Get(ctx, githubTokenKey)
	if errors.Is(err, models.ErrNotFound) {
		return s.fallbackToken, nil
	}
	if err != nil {
		return "", fmt.Errorf("load GitHub token: %w", err)
	}
	return token, nil
}

// TokenStatus reports whether a token is set with a masked preview
func (s *SettingsService) TokenStatus(ctx context.Context) (models.TokenStatus, error) {
	token, err := s.GitHubToken(ctx)
	if err != nil {
		return models.TokenStatus{}, err
	}
	if token == "" {
		return models.TokenStatus{HasToken: false}, nil
	}
	return models.TokenStatus{HasToken: true, TokenPreview: maskToken(token)}, nil
}

// SetGitHubToken stores a token
func (s *SettingsService) SetGitHubToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", models.ErrInvalidArgument)
	}
	return s.settings.Set(ctx, githubTokenKey, token)
}

// ClearGitHubToken removes the stored token
func (s *SettingsService) ClearGitHubToken(ctx context.Context) error {
	return s.settings.Delete(ctx, githubTokenKey)
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return "***"
	}
	return "***" + token[len(token)-4:]
}
