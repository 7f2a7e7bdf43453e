// Package mail sends transactional email through a pluggable provider.
package mail

import (
	"context"
	"errors"
	"net/mail"
)

// ErrNoRecipients is returned when a message has nobody to deliver to.
var ErrNoRecipients = errors.New("mail: message has no recipients")

// Attachment is a file carried by a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a provider-neutral email.
type Message struct {
	To          []mail.Address
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Mailer delivers messages. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

func validate(msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range msg.To {
		if to.Address == "" {
			return ErrNoRecipients
		}
	}
	return nil
}
