package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"mathquest/internal/logger"
	"mathquest/internal/progress"
)

// Mailer sends the transactional emails services need
type Mailer interface {
	IsEnabled() bool
	SendPasswordResetEmail(ctx context.Context, toEmail, toName, resetToken string) error
	SendAchievementEmail(ctx context.Context, toEmail, toName, learnerName string, earned []progress.Achievement) error
}

// sesAPI is the part of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     sesAPI
	log        *logger.Logger
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	debug      bool
}

// NewEmailService creates a new email service. Without a from address the
// service is disabled and every send is a logged no-op.
func NewEmailService(ctx context.Context, log *logger.Logger, awsRegion, fromEmail, fromName, appBaseURL string, debug bool) (*EmailService, error) {
	log = log.With("service", "EmailService")
	if fromEmail == "" {
		log.Info("Email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{log: log, enabled: false, debug: debug}, nil
	}

	if debug {
		log.Debug("Initializing email service with AWS SES", "region", awsRegion, "from", fromEmail, "appBaseURL", appBaseURL)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info("Email service enabled", "from", fromEmail, "region", awsRegion)
	return newEmailServiceWithClient(sesv2.NewFromConfig(cfg), log, fromEmail, fromName, appBaseURL, debug), nil
}

func newEmailServiceWithClient(client sesAPI, log *logger.Logger, fromEmail, fromName, appBaseURL string, debug bool) *EmailService {
	return &EmailService{
		client:     client,
		log:        log,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		debug:      debug,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

const emailStyle = `
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background: linear-gradient(90deg, #8b5cf6, #ec4899); color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #8b5cf6; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }`

func wrapHTML(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>%s
	</style>
</head>
<body>
	<div class="container">
		<div class="header"><h1>%s</h1></div>
		<div class="content">%s</div>
		<div class="footer"><p>This is an automated email from MathQuest. Please do not reply.</p></div>
	</div>
</body>
</html>
`, emailStyle, html.EscapeString(title), content)
}

// SendPasswordResetEmail sends a password reset email with a reset link
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, toEmail, toName, resetToken string) error {
	if !s.enabled {
		s.log.Info("Skipping email send (service disabled)", "kind", "password_reset", "to", toEmail)
		return nil
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.appBaseURL, resetToken)
	subject := "Reset Your MathQuest Password"
	htmlBody := wrapHTML("Password Reset Request", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>We received a request to reset your MathQuest password.</p>
			<p style="text-align: center;"><a href="%s" class="button">Reset Password</a></p>
			<p style="word-break: break-all; font-size: 12px; color: #666;">%s</p>
			<p><strong>This link will expire in 1 hour.</strong></p>
			<p>If you didn't request a password reset, you can safely ignore this email.</p>`,
		html.EscapeString(toName), resetLink, resetLink))

	textBody := fmt.Sprintf(`Hi %s,

We received a request to reset your MathQuest password.

Reset it here:
%s

This link will expire in 1 hour.

If you didn't request a password reset, you can safely ignore this email.
`, toName, resetLink)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendAchievementEmail tells a guardian which achievements a learner just earned
func (s *EmailService) SendAchievementEmail(ctx context.Context, toEmail, toName, learnerName string, earned []progress.Achievement) error {
	if len(earned) == 0 {
		return nil
	}
	if !s.enabled {
		s.log.Info("Skipping email send (service disabled)", "kind", "achievement", "to", toEmail)
		return nil
	}

	titles := make([]string, len(earned))
	var items strings.Builder
	for i, a := range earned {
		titles[i] = a.Title
		fmt.Fprintf(&items, "<li>%s <strong>%s</strong>: %s</li>", a.Icon, html.EscapeString(a.Title), html.EscapeString(a.Description))
	}

	subject := fmt.Sprintf("%s earned a new achievement!", learnerName)
	htmlBody := wrapHTML("New Achievement", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>%s just unlocked:</p>
			<ul>%s</ul>
			<p style="text-align: center;"><a href="%s/parent" class="button">View Progress</a></p>`,
		html.EscapeString(toName), html.EscapeString(learnerName), items.String(), s.appBaseURL))

	textBody := fmt.Sprintf(`Hi %s,

%s just unlocked: %s

View progress: %s/parent
`, toName, learnerName, strings.Join(titles, ", "), s.appBaseURL)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	if s.debug && result.MessageId != nil {
		s.log.Debug("SES SendEmail succeeded", "messageId", *result.MessageId)
	}
	s.log.Info("Email sent", "to", toEmail, "subject", subject)
	return nil
}
