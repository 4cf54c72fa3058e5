package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/app/repository"
)

var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrFileTooLarge = errors.New("file exceeds the upload limit")
)

// Upload describes one file handed to the media library.
type Upload struct {
	SubAccountID string
	Name         string
	FileName     string
	ContentType  string
	Size         int64
	Body         io.ReadSeeker
}

// Service stores media files and keeps the media table and activity log in step.
type Service struct {
	store         ObjectStore
	cfg           *Config
	media         repository.MediaRepository
	agencies      repository.AgencyRepository
	notifications repository.NotificationRepository
}

func NewService(store ObjectStore, cfg *Config, repos *repository.Repositories) *Service {
	return &Service{
		store:         store,
		cfg:           cfg,
		media:         repos.Media,
		agencies:      repos.Agency,
		notifications: repos.Notification,
	}
}

// Upload writes the object first and the row second. A failed row insert
// removes the object again.
func (s *Service) Upload(ctx context.Context, in Upload) (*models.Media, error) {
	if in.Size <= 0 {
		return nil, ErrEmptyFile
	}
	if s.cfg.MaxUploadBytes > 0 && in.Size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w (%d > %d bytes)", ErrFileTooLarge, in.Size, s.cfg.MaxUploadBytes)
	}
	sub, err := s.agencies.GetSubAccountByID(ctx, in.SubAccountID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.FileName
	}
	media := &models.Media{
		ID:           uuid.New().String(),
		SubAccountID: sub.ID,
		Name:         name,
		ContentType:  in.ContentType,
		Size:         in.Size,
	}
	media.ObjectKey = s.cfg.ObjectKey(sub.ID, media.ID, in.FileName)
	media.Link = s.cfg.PublicURL(media.ObjectKey)

	if err := s.store.Put(ctx, media.ObjectKey, in.Body, in.Size, in.ContentType); err != nil {
		return nil, err
	}
	if err := s.media.Create(ctx, media); err != nil {
		if delErr := s.store.Delete(ctx, media.ObjectKey); delErr != nil {
			log.Errorf("[Media] Orphaned object %s: %v", media.ObjectKey, delErr)
		}
		return nil, err
	}

	s.notify(ctx, sub, "Uploaded a media file | "+media.Name)
	return media, nil
}

func (s *Service) List(ctx context.Context, subAccountID string) ([]models.Media, error) {
	if _, err := s.agencies.GetSubAccountByID(ctx, subAccountID); err != nil {
		return nil, err
	}
	return s.media.ListBySubAccount(ctx, subAccountID)
}

// Delete removes the object and the row. An object that is already gone does
// not keep the row alive.
func (s *Service) Delete(ctx context.Context, mediaID string) (*models.Media, error) {
	media, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, media.ObjectKey); err != nil {
		log.Warnf("[Media] Deleting object %s failed: %v", media.ObjectKey, err)
	}
	if err := s.media.Delete(ctx, media.ID); err != nil {
		return nil, err
	}

	if sub, err := s.agencies.GetSubAccountByID(ctx, media.SubAccountID); err == nil {
		s.notify(ctx, sub, "Deleted a media file | "+media.Name)
	}
	return media, nil
}

func (s *Service) notify(ctx context.Context, sub *models.SubAccount, description string) {
	subID := sub.ID
	if err := s.notifications.Create(ctx, sub.AgencyID, &subID, models.NotificationTypeMedia, description); err != nil {
		log.Warnf("[Media] Writing notification failed: %v", err)
	}
}
