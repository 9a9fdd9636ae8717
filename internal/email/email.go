// Package email provides the outbound notification channel for CartRescue.
//
// The pipeline treats the channel as a black box: deliver an HTML document to
// an address, report success or failure. The production implementation uses
// Amazon SESv2.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Sender delivers a rendered HTML email to a single recipient.
type Sender interface {
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

// SESSender implements Sender on top of Amazon SESv2.
type SESSender struct {
	client    *sesv2.Client
	fromEmail string
}

// NewSESSender creates a SESv2-backed sender using ambient AWS credentials.
// The sender address comes from SES_FROM_EMAIL.
func NewSESSender(ctx context.Context) (*SESSender, error) {
	from := os.Getenv("SES_FROM_EMAIL")
	if from == "" {
		return nil, fmt.Errorf("SES_FROM_EMAIL is not set")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("NewSESSender: failed to load AWS config", "error", err)
		return nil, fmt.Errorf("load AWS config failed: %w", err)
	}

	return &SESSender{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: from,
	}, nil
}

// Send delivers one HTML email. The caller is responsible for the per-send
// timeout via ctx.
func (s *SESSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody)},
				},
			},
		},
	})
	if err != nil {
		slog.Error("SESSender.Send failed", "error", err, "to", to)
		return fmt.Errorf("send email to %s failed: %w", to, err)
	}
	slog.Debug("SESSender.Send succeeded", "to", to)
	return nil
}
