package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/attendee-import/internal/config"
	"github.com/ignite/attendee-import/internal/importer"
)

// SESMailer implements importer.Notifier on AWS SES v2.
type SESMailer struct {
	client    *sesv2.Client
	renderer  *TemplateRenderer
	sender    string
	subject   string
	body      string
}

// NewSESMailer creates an SES confirmation sender.
func NewSESMailer(ctx context.Context, cfg appconfig.SESConfig) (*SESMailer, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	subject := cfg.SubjectTemplate
	if subject == "" {
		subject = DefaultSubjectTemplate
	}
	body := cfg.BodyTemplate
	if body == "" {
		body = DefaultBodyTemplate
	}

	return &SESMailer{
		client:   sesv2.NewFromConfig(awsCfg),
		renderer: NewTemplateRenderer(),
		sender:   cfg.Sender,
		subject:  subject,
		body:     body,
	}, nil
}

// SendConfirmation renders and sends the confirmation email for one
// attendee. Errors are returned to the executor, which logs and swallows
// them; a failed send never affects the import outcome.
func (m *SESMailer) SendConfirmation(ctx context.Context, a *importer.Attendee, ev *importer.Event) error {
	subject, err := m.renderer.Render(m.subject, a, ev)
	if err != nil {
		return err
	}
	body, err := m.renderer.Render(m.body, a, ev)
	if err != nil {
		return err
	}

	_, err = m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.sender),
		Destination: &types.Destination{
			ToAddresses: []string{a.Email},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending confirmation to %s: %w", a.Email, err)
	}
	return nil
}
