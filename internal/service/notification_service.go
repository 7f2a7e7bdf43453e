package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/models"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/export"
	"github.com/noah-isme/elective-api/pkg/jobs"
	mailer "github.com/noah-isme/elective-api/pkg/mail"
	"github.com/noah-isme/elective-api/pkg/storage"
)

// Notification outcomes reported to metrics.
const (
	NotificationSent    = "sent"
	NotificationSkipped = "skipped"
	NotificationRetry   = "retry"
	NotificationFailed  = "failed"
)

// RosterDownloadPath is the public route serving archived rosters.
const RosterDownloadPath = "/rosters/download"

const recoverBatchSize = 100

type outboxStore interface {
	FindByID(ctx context.Context, id string) (*models.OutboxMessage, error)
	ListPending(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	RecordAttempt(ctx context.Context, id string, lastErr string) error
	MarkSent(ctx context.Context, id string) error
	MarkSkipped(ctx context.Context, id string, reason string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

type rosterArchive interface {
	Save(relPath string, data []byte) (string, error)
	Path(relPath string) (string, error)
}

type downloadSigner interface {
	Generate(ref, relPath string) (string, time.Time, error)
	Parse(token string) (ref, relPath string, expiresAt time.Time, err error)
}

// NotificationConfig tunes course-filled notifications.
type NotificationConfig struct {
	Workers       int
	MaxRetries    int
	RetryDelay    time.Duration
	AttachPDF     bool
	PublicBaseURL string
	APIPrefix     string
}

// NotificationService delivers course-filled emails from the outbox.
// Delivery is at least once: rows stay pending until sent, skipped or given up.
type NotificationService struct {
	outbox  outboxStore
	mailer  mailer.Mailer
	archive rosterArchive
	signer  downloadSigner
	metrics *MetricsService
	logger  *zap.Logger
	config  NotificationConfig
	queue   *jobs.Queue
	now     func() time.Time
}

// NewNotificationService constructs the dispatcher and its worker queue.
func NewNotificationService(outbox outboxStore, m mailer.Mailer, archive rosterArchive, signer downloadSigner, metrics *MetricsService, logger *zap.Logger, config NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		outbox:  outbox,
		mailer:  m,
		archive: archive,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
	s.queue = jobs.NewQueue("course-filled", s.handleJob, jobs.QueueConfig{
		Workers:    config.Workers,
		MaxRetries: config.MaxRetries,
		RetryDelay: config.RetryDelay,
		OnGiveUp:   s.giveUp,
		Logger:     logger,
	})
	return s
}

// Start launches the workers and re-enqueues rows left pending by a previous run.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	if _, err := s.Recover(ctx); err != nil {
		s.logger.Error("failed to recover pending notifications", zap.Error(err))
	}
}

// Stop waits for in-flight deliveries to exit.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules delivery of an outbox row without blocking the caller.
// When the queue is full or stopped the row stays pending for the next Recover.
func (s *NotificationService) Enqueue(outboxID string) {
	if err := s.queue.TryEnqueue(jobs.Job{ID: outboxID, Type: models.OutboxKindCourseFilled}); err != nil {
		s.logger.Warn("notification left pending", zap.String("outbox_id", outboxID), zap.Error(err))
	}
}

// Recover enqueues every pending outbox row and returns how many were queued.
func (s *NotificationService) Recover(ctx context.Context) (int, error) {
	pending, err := s.outbox.ListPending(ctx, recoverBatchSize)
	if err != nil {
		return 0, err
	}
	for _, msg := range pending {
		s.Enqueue(msg.ID)
	}
	if len(pending) > 0 {
		s.logger.Info("recovered pending notifications", zap.Int("count", len(pending)))
	}
	return len(pending), nil
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	return s.Handle(ctx, job.ID)
}

func (s *NotificationService) giveUp(ctx context.Context, job jobs.Job, err error) {
	s.metrics.RecordNotification(NotificationFailed)
	if markErr := s.outbox.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error()); markErr != nil {
		s.logger.Error("failed to mark notification failed", zap.String("outbox_id", job.ID), zap.Error(markErr))
	}
}

// Handle delivers one outbox row. Rows that are no longer pending are ignored.
// A mail failure returns ErrUnavailable so the queue retries it.
func (s *NotificationService) Handle(ctx context.Context, outboxID string) error {
	msg, err := s.outbox.FindByID(ctx, outboxID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("outbox row vanished", zap.String("outbox_id", outboxID))
			return nil
		}
		return err
	}
	if msg.Status != models.OutboxPending {
		return nil
	}

	var payload models.CourseFilledPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.Error("invalid course filled payload", zap.String("outbox_id", msg.ID), zap.Error(err))
		return s.outbox.MarkFailed(ctx, msg.ID, err.Error())
	}

	if strings.TrimSpace(payload.TeacherEmail) == "" {
		s.logger.Info("course is full, but no teacher email configured", zap.String("course", payload.CourseName))
		s.metrics.RecordNotification(NotificationSkipped)
		return s.outbox.MarkSkipped(ctx, msg.ID, "no teacher email configured")
	}

	email, err := s.compose(msg.ID, payload)
	if err != nil {
		s.logger.Error("failed to compose course filled email", zap.String("outbox_id", msg.ID), zap.Error(err))
		return err
	}

	if err := s.mailer.Send(ctx, *email); err != nil {
		s.metrics.RecordNotification(NotificationRetry)
		if recErr := s.outbox.RecordAttempt(ctx, msg.ID, err.Error()); recErr != nil {
			s.logger.Warn("failed to record notification attempt", zap.String("outbox_id", msg.ID), zap.Error(recErr))
		}
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "mail delivery failed")
	}

	s.metrics.RecordNotification(NotificationSent)
	s.logger.Info("course filled email sent", zap.String("course", payload.CourseName), zap.String("to", payload.TeacherEmail))
	return s.outbox.MarkSent(ctx, msg.ID)
}

func (s *NotificationService) compose(outboxID string, payload models.CourseFilledPayload) (*mailer.Message, error) {
	at := payload.FilledAt
	if at.IsZero() {
		at = s.now()
	}
	dataset := rosterDataset(payload.CourseName, payload.Roster)

	csvBytes, err := export.NewCSVExporter().Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render roster csv: %w", err)
	}
	csvName := rosterFilename(payload.CourseName, at, export.FormatCSV)
	attachments := []mailer.Attachment{{Filename: csvName, ContentType: "text/csv", Content: csvBytes}}

	if s.config.AttachPDF {
		pdfBytes, err := export.NewPDFExporter().Render(dataset)
		if err != nil {
			s.logger.Warn("skipping pdf roster attachment", zap.String("outbox_id", outboxID), zap.Error(err))
		} else {
			attachments = append(attachments, mailer.Attachment{
				Filename:    rosterFilename(payload.CourseName, at, export.FormatPDF),
				ContentType: "application/pdf",
				Content:     pdfBytes,
			})
		}
	}

	link := s.archiveRoster(outboxID, payload.CourseID, csvName, csvBytes)

	return &mailer.Message{
		To:          []mail.Address{{Name: payload.Teacher, Address: payload.TeacherEmail}},
		Subject:     fmt.Sprintf("Course Filled: %s", payload.CourseName),
		Text:        filledText(payload, link),
		HTML:        filledHTML(payload, link),
		Attachments: attachments,
	}, nil
}

// archiveRoster stores the CSV snapshot and returns a signed download link, or "" on failure.
func (s *NotificationService) archiveRoster(outboxID, courseID, filename string, content []byte) string {
	if s.archive == nil || s.signer == nil {
		return ""
	}
	rel, err := s.archive.Save(path.Join(courseID, filename), content)
	if err != nil {
		s.logger.Warn("failed to archive roster", zap.String("course_id", courseID), zap.Error(err))
		return ""
	}
	token, _, err := s.signer.Generate(outboxID, rel)
	if err != nil {
		s.logger.Warn("failed to sign roster link", zap.String("course_id", courseID), zap.Error(err))
		return ""
	}
	return s.config.PublicBaseURL + s.config.APIPrefix + RosterDownloadPath + "?token=" + url.QueryEscape(token)
}

// ResolveDownload validates a signed roster token and returns the file location and name.
func (s *NotificationService) ResolveDownload(token string) (string, string, error) {
	if s.signer == nil || s.archive == nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "roster archive is not configured")
	}
	_, rel, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return "", "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return "", "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	full, err := s.archive.Path(rel)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "roster not found")
	}
	return full, path.Base(rel), nil
}

func rosterLine(entry models.RosterEntry) string {
	batch := entry.Batch
	if batch == "" {
		batch = "-"
	}
	return fmt.Sprintf("%d. %s (%s) - Year %d, Sem %d, Batch: %s", entry.Position, entry.Name, entry.RollNumber, entry.Year, entry.Semester, batch)
}

func filledText(payload models.CourseFilledPayload, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", payload.Teacher)
	fmt.Fprintf(&b, "Your course %q has reached its capacity of %d students.\n\n", payload.CourseName, payload.Capacity)
	b.WriteString("Enrolled students:\n")
	for _, entry := range payload.Roster {
		b.WriteString(rosterLine(entry))
		b.WriteByte('\n')
	}
	if link != "" {
		fmt.Fprintf(&b, "\nDownload the roster: %s\n", link)
	}
	b.WriteString("\nRegards,\nElective Course Selector System")
	return b.String()
}

func filledHTML(payload models.CourseFilledPayload, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hello %s,</p>", html.EscapeString(payload.Teacher))
	fmt.Fprintf(&b, "<p>Your course <strong>%s</strong> has reached its capacity of %d students.</p>",
		html.EscapeString(payload.CourseName), payload.Capacity)
	b.WriteString("<table border=\"1\" cellpadding=\"4\" cellspacing=\"0\"><thead><tr>")
	for _, h := range rosterHeaders {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(h))
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range rosterDataset(payload.CourseName, payload.Roster).Rows {
		b.WriteString("<tr>")
		for _, h := range rosterHeaders {
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(row[h]))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	if link != "" {
		fmt.Fprintf(&b, "<p><a href=\"%s\">Download the roster</a></p>", html.EscapeString(link))
	}
	b.WriteString("<p>Regards,<br>Elective Course Selector System</p>")
	return b.String()
}
