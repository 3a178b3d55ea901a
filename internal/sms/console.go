package sms

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConsoleSender writes messages to the log instead of sending them.
// For local development only.
type ConsoleSender struct {
	logger *logrus.Logger
}

func NewConsoleSender(logger *logrus.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if msg.To == "" {
		return Receipt{}, ErrNoDestination
	}
	if msg.Code == "" {
		return Receipt{}, ErrNoCode
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	id := uuid.New().String()
	s.logger.WithFields(logrus.Fields{
		"delivery_id": id,
		"to":          msg.To,
		"sender":      msg.SenderName,
		"message":     Render(msg.Template, msg.Code),
	}).Warn("SMS provider is console, message not sent")

	return Receipt{ID: id, Code: msg.Code}, nil
}
