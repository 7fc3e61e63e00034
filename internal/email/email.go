package email

import (
	"fmt"

	"feedback-backend/internal/models"

	"github.com/labstack/echo/v4"
	resend "github.com/resend/resend-go/v2"
)

// EmailClient is an interface for sending emails
type EmailClient interface {
	SendAsync(toEmail, subject, htmlBody string)
	SendWelcomeEmail(user *models.User)
	SendFeedbackRequestEmail(requesterName, toEmail string)
	SendFeedbackSubmittedEmail(authorName, toEmail string)
}

// ResendEmailClient implements EmailClient using the Resend service
type ResendEmailClient struct {
	client        *resend.Client
	defaultSender string
	logger        echo.Logger
}

// NewResendEmailClient creates a new ResendEmailClient
func NewResendEmailClient(client *resend.Client, defaultSender string, logger echo.Logger) *ResendEmailClient {
	return &ResendEmailClient{
		client:        client,
		defaultSender: defaultSender,
		logger:        logger,
	}
}

// SendAsync sends an email asynchronously
func (c *ResendEmailClient) SendAsync(toEmail, subject, htmlBody string) {
	if c == nil || c.client == nil {
		fmt.Println("Resend client not initialized, skipping email.")
		return
	}

	if c.defaultSender == "" {
		c.logger.Warn("Default sender not configured, skipping email.")
		return
	}

	go func() {
		params := &resend.SendEmailRequest{
			From:    c.defaultSender,
			To:      []string{toEmail},
			Subject: subject,
			Html:    htmlBody,
		}

		if _, err := c.client.Emails.Send(params); err != nil {
			c.logger.Errorf("Failed to send email to %s: %v", toEmail, err)
		}
	}()
}

// SendWelcomeEmail sends a welcome email to a newly registered user
func (c *ResendEmailClient) SendWelcomeEmail(user *models.User) {
	if c == nil {
		return
	}

	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your account is ready. You can now give and receive feedback with your team.</p>`, user.Name)

	c.SendAsync(user.Email, "Welcome to FeedbackHub", body)
}

// SendFeedbackRequestEmail notifies a giver that a teammate asked them
// for feedback
func (c *ResendEmailClient) SendFeedbackRequestEmail(requesterName, toEmail string) {
	if c == nil {
		return
	}

	body := fmt.Sprintf(`<p>%s has requested your feedback.</p>
<p>Log in to write it when you have a moment.</p>`, requesterName)

	c.SendAsync(toEmail, fmt.Sprintf("%s asked you for feedback", requesterName), body)
}

// SendFeedbackSubmittedEmail notifies a subject that new feedback is
// waiting for them. authorName is "A teammate" for anonymous items.
func (c *ResendEmailClient) SendFeedbackSubmittedEmail(authorName, toEmail string) {
	if c == nil {
		return
	}

	body := fmt.Sprintf(`<p>%s has shared feedback with you.</p>
<p>Log in to read and acknowledge it.</p>`, authorName)

	c.SendAsync(toEmail, "You have new feedback", body)
}
