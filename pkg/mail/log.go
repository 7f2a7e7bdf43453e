package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer writes messages to the log instead of delivering them. Used in development.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.Address)
	}
	m.logger.Info("mail not delivered (log provider)",
		zap.Strings("to", to),
		zap.String("subject", msg.Subject),
		zap.Strings("attachments", names),
		zap.String("text", msg.Text),
	)
	return nil
}
