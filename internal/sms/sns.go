package sms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/sirupsen/logrus"
)

// SNSPublisher is the subset of the SNS client used for direct SMS.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender publishes codes as transactional SMS through AWS SNS. SNS cannot
// generate codes, so every message must carry one.
type SNSSender struct {
	client SNSPublisher
	logger *logrus.Logger
}

func NewSNSSender(client SNSPublisher, logger *logrus.Logger) *SNSSender {
	return &SNSSender{
		client: client,
		logger: logger,
	}
}

func (s *SNSSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if msg.To == "" {
		return Receipt{}, ErrNoDestination
	}
	if msg.Code == "" {
		return Receipt{}, ErrNoCode
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if msg.SenderName != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(msg.SenderName),
		}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String("+" + msg.To),
		Message:           aws.String(Render(msg.Template, msg.Code)),
		MessageAttributes: attrs,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to publish OTP via SNS")
		return Receipt{}, fmt.Errorf("sns publish failed: %w", err)
	}

	receipt := Receipt{ID: aws.ToString(out.MessageId), Code: msg.Code}
	s.logger.WithField("message_id", receipt.ID).Info("OTP message published to SNS")
	return receipt, nil
}
