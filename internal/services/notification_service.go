// internal/services/notification_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/models"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

// Notification categories group messages by the screen that renders them.
const (
	CategoryProject   = "project"
	CategoryMilestone = "milestone"
	CategoryEscrow    = "escrow"
	CategoryDispute   = "dispute"
	CategoryFund      = "fund"
)

// AMQPPublisher is the slice of amqp091.Channel the service needs.
// Tests substitute a recording fake.
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type NotificationService struct {
	db        *gorm.DB
	config    *config.Config
	publisher AMQPPublisher
	logger    *logrus.Entry
}

// NotificationIntent is a single message addressed to one recipient.
// Services build intents inside transactions and hand them to Dispatch
// after commit.
type NotificationIntent struct {
	RecipientID        uuid.UUID
	Category           string
	Pattern            string
	Message            string
	Metadata           models.JSONB
	SenderProfileImage string
}

func NewNotificationService(db *gorm.DB, config *config.Config, publisher AMQPPublisher) *NotificationService {
	return &NotificationService{
		db:        db,
		config:    config,
		publisher: publisher,
		logger:    logrus.WithField("service", "notification"),
	}
}

// Dispatch persists each intent and fans it out over AMQP. Delivery is
// best effort: failures are logged and never surfaced to the caller, so
// a broker outage cannot fail a project or milestone operation.
func (s *NotificationService) Dispatch(ctx context.Context, intents ...NotificationIntent) {
	for _, intent := range intents {
		if intent.RecipientID == uuid.Nil {
			continue
		}

		notification := &models.Notification{
			RecipientID:        intent.RecipientID,
			Category:           intent.Category,
			Pattern:            intent.Pattern,
			Message:            intent.Message,
			Metadata:           intent.Metadata,
			SenderProfileImage: intent.SenderProfileImage,
		}

		if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"recipient_id": intent.RecipientID,
				"pattern":      intent.Pattern,
			}).Error("failed to persist notification")
			continue
		}

		s.publish(ctx, notification)
	}
}

func (s *NotificationService) publish(ctx context.Context, notification *models.Notification) {
	if s.publisher == nil {
		return
	}

	body, err := json.Marshal(notification)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode notification")
		return
	}

	routingKey := fmt.Sprintf("notify.%s", notification.RecipientID)

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = s.publisher.PublishWithContext(publishCtx, s.config.AMQP.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    notification.ID.String(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"routing_key": routingKey,
			"pattern":     notification.Pattern,
		}).Error("failed to publish notification")
	}
}

// ListNotifications returns the recipient's notifications, newest first.
func (s *NotificationService) ListNotifications(userID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	var notifications []models.Notification
	var total int64

	query := s.db.Model(&models.Notification{}).Where("recipient_id = ?", userID)

	if params.Status == "unread" {
		query = query.Where("read_at IS NULL")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	err := utils.ApplyPagination(query.Order("created_at DESC"), params).Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	result := utils.CreatePaginationResult(notifications, total, params)
	return &result, nil
}

// MarkRead stamps read_at on the given notification if it belongs to the user.
func (s *NotificationService) MarkRead(userID, notificationID uuid.UUID) error {
	result := s.db.Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", notificationID, userID).
		Update("read_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	return nil
}

// MarkAllRead stamps read_at on every unread notification for the user.
func (s *NotificationService) MarkAllRead(userID uuid.UUID) error {
	err := s.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

// UnreadCount returns the number of unread notifications for the user.
func (s *NotificationService) UnreadCount(userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}
