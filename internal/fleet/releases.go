package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fleetdeploy/internal/database"
	"fleetdeploy/internal/github"
	"fleetdeploy/pkg/models"
)

// VersionLister fetches published versions of a source repository
type VersionLister interface {
	ListReleases(ctx context.Context, repo github.Repository, token string) ([]models.ReleaseVersion, error)
}

// ReleaseService manages the release catalog. Deleting a release leaves
// deployments untouched: their release_tags are point-in-time snapshots.
type ReleaseService struct {
	releases database.ReleaseRepository
	settings *SettingsService
	versions VersionLister
	now      func() time.Time
}

// NewReleaseService creates a release service
func NewReleaseService(releases database.ReleaseRepository, settings *SettingsService, versions VersionLister) *ReleaseService {
	return &ReleaseService{
		releases: releases,
		settings: settings,
		versions: versions,
		now:      time.Now,
	}
}

// Create registers the repository behind githubURL as a release whose id,
// tag and name are the repository name.
func (s *ReleaseService) Create(ctx context.Context, req models.CreateReleaseRequest) (*models.Release, error) {
	repo, err := github.ParseURL(req.GitHubURL)
	if err != nil {
		return nil, err
	}

	release := &models.Release{
		ID:          repo.Name,
		TagName:     repo.Name,
		Name:        repo.Name,
		ReleaseDate: s.now().UTC(),
		DownloadURL: strings.TrimRight(strings.TrimSpace(req.GitHubURL), "/"),
		Description: "GitHub: " + repo.String(),
		Assets:      []string{},
	}
	if err := s.releases.Create(ctx, release); err != nil {
		return nil, err
	}

	log.Info().Str("release_id", release.ID).Str("repository", repo.String()).Msg("Release registered")
	return s.releases.Get(ctx, release.ID)
}

// List returns the whole catalog
func (s *ReleaseService) List(ctx context.Context) ([]*models.Release, error) {
	return s.releases.List(ctx)
}

// Get returns one release
func (s *ReleaseService) Get(ctx context.Context, id string) (*models.Release, error) {
	return s.releases.Get(ctx, id)
}

// Update edits the display fields that are set in req
func (s *ReleaseService) Update(ctx context.Context, id string, req models.UpdateReleaseRequest) (*models.Release, error) {
	release, err := s.releases.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", models.ErrInvalidArgument)
		}
		release.Name = *req.Name
	}
	if req.Description != nil {
		release.Description = *req.Description
	}
	if req.DownloadURL != nil {
		release.DownloadURL = *req.DownloadURL
	}

	if err := s.releases.Update(ctx, release); err != nil {
		return nil, err
	}
	return release, nil
}

// Delete removes a release from the catalog
func (s *ReleaseService) Delete(ctx context.Context, id string) error {
	if err := s.releases.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("release_id", id).Msg("Release deleted")
	return nil
}

// Versions lists the published versions of the release's repository
func (s *ReleaseService) Versions(ctx context.Context, id string) ([]models.ReleaseVersion, error) {
	release, err := s.releases.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	repo, err := github.ParseURL(release.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("release %s has no GitHub source: %w", id, err)
	}

	token, err := s.settings.GitHubToken(ctx)
	if err != nil {
		return nil, err
	}

	versions, err := s.versions.ListReleases(ctx, repo, token)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Warn().Err(err).Str("repository", repo.String()).Msg("GitHub versions lookup failed")
		}
		return nil, err
	}
	return versions, nil
}
