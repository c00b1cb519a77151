package notifications

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/utils"
)

// Notice is what gets delivered to each user of a subscription.
type Notice struct {
	Label        string
	DiscussionID uint
	RelatedType  string
	RelatedID    uint
	Context      map[string]any
	Subject      string
	Body         string
}

// Sender delivers a notice to users.
type Sender interface {
	Send(ctx context.Context, notice Notice, users []models.User) error
}

// StoreSender persists one Notification row per user, shown in the user's inbox.
type StoreSender struct {
	db *gorm.DB
}

func NewStoreSender(db *gorm.DB) *StoreSender {
	return &StoreSender{db: db}
}

func (s *StoreSender) Send(ctx context.Context, notice Notice, users []models.User) error {
	if len(users) == 0 {
		return nil
	}
	rows := make([]models.Notification, 0, len(users))
	for _, u := range users {
		rows = append(rows, models.Notification{
			UserID:       u.ID,
			Label:        notice.Label,
			DiscussionID: notice.DiscussionID,
			RelatedType:  notice.RelatedType,
			RelatedID:    notice.RelatedID,
			Context:      datatypes.JSONMap(notice.Context),
		})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("store %s notifications: %w", notice.Label, err)
	}
	return nil
}

// MailFunc sends one plain text email.
type MailFunc func(to, subject, body string) error

// MailSender emails every user that has an address.
type MailSender struct {
	send MailFunc
}

// NewMailSender returns a MailSender using send, or utils.SendMail when send is nil.
func NewMailSender(send MailFunc) *MailSender {
	if send == nil {
		send = utils.SendMail
	}
	return &MailSender{send: send}
}

func (s *MailSender) Send(ctx context.Context, notice Notice, users []models.User) error {
	var errs []error
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := s.send(u.Email, notice.Subject, notice.Body); err != nil {
			errs = append(errs, fmt.Errorf("mail user %d: %w", u.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ErrPartialDelivery is joined into a MultiSender error when at least one of
// its senders succeeded, so the users still received the notice.
var ErrPartialDelivery = errors.New("notice delivered by some senders only")

// MultiSender delivers through every sender and joins their errors.
type MultiSender []Sender

func (m MultiSender) Send(ctx context.Context, notice Notice, users []models.User) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, notice, users); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 && len(errs) < len(m) {
		errs = append([]error{ErrPartialDelivery}, errs...)
	}
	return errors.Join(errs...)
}

// delivered reports whether err from Send still left the notice with its users.
func delivered(err error) bool {
	return err == nil || errors.Is(err, ErrPartialDelivery)
}
