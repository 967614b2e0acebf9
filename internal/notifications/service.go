package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/orderlyhq/orderly-backend/internal/mailer"
	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

// Service writes notifications to the portal inbox and mirrors them to
// email. Email failures never fail the notify call.
type Service interface {
	Notify(ctx context.Context, input NotifyInput) (*models.Notification, error)
	List(ctx context.Context, orgID string, unreadOnly bool, limit, offset int) ([]models.Notification, int64, error)
	MarkRead(ctx context.Context, orgID, id string) error
	MarkAllRead(ctx context.Context, orgID string) (int64, error)
}

type NotifyInput struct {
	OrgID   string
	Type    enums.NotificationType
	Title   string
	Body    string
	OrderID *string

	// Email recipient; empty skips the email mirror.
	Email     string
	EmailName string
}

type service struct {
	repo   Repository
	mailer mailer.Mailer
	logg   *logger.Logger
}

// NewService wires the notification service.
func NewService(repo Repository, m mailer.Mailer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	if m == nil {
		m = mailer.NoopMailer{}
	}
	return &service{repo: repo, mailer: m, logg: logg}, nil
}

func (s *service) Notify(ctx context.Context, input NotifyInput) (*models.Notification, error) {
	if input.OrgID == "" {
		return nil, fmt.Errorf("org id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid notification type %q", input.Type)
	}

	notification := &models.Notification{
		OrgID:   input.OrgID,
		Type:    input.Type,
		Title:   input.Title,
		Body:    input.Body,
		OrderID: input.OrderID,
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create notification")
	}

	if input.Email != "" {
		msg := mailer.Message{
			ToEmail:   input.Email,
			ToName:    input.EmailName,
			Subject:   input.Title,
			PlainBody: input.Body,
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithField(ctx, "notification_id", notification.ID)
				s.logg.Error(logCtx, "notification email failed", err)
			}
		} else {
			now := time.Now().UTC()
			if err := s.repo.MarkEmailed(ctx, notification.ID, now); err != nil && s.logg != nil {
				s.logg.Error(ctx, "marking notification emailed failed", err)
			}
			notification.EmailedAt = &now
		}
	}

	return notification, nil
}

func (s *service) List(ctx context.Context, orgID string, unreadOnly bool, limit, offset int) ([]models.Notification, int64, error) {
	return s.repo.List(ctx, orgID, unreadOnly, limit, offset)
}

func (s *service) MarkRead(ctx context.Context, orgID, id string) error {
	if _, err := s.repo.GetByID(ctx, orgID, id); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load notification")
	}
	if err := s.repo.MarkRead(ctx, orgID, id, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark notification read")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, orgID string) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, orgID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark notifications read")
	}
	return count, nil
}
