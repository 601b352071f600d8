package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ChannelEmail is the transactional e-mail channel name.
const ChannelEmail = "email"

// EmailChannel delivers messages through SendGrid.
type EmailChannel struct {
	apiKey    string
	fromEmail string
	fromName  string
}

// NewEmailChannel constructs the SendGrid channel.
func NewEmailChannel(apiKey, fromEmail, fromName string) *EmailChannel {
	return &EmailChannel{apiKey: apiKey, fromEmail: fromEmail, fromName: fromName}
}

// Name identifies the channel.
func (c *EmailChannel) Name() string { return ChannelEmail }

// Send delivers one message as a plain-text e-mail.
func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail(msg.Recipient, msg.Email)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "")

	client := sendgrid.NewSendClient(c.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected message: status %d", response.StatusCode)
	}
	return nil
}
