package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleMessage() Message {
	return Message{
		To:      []mail.Address{{Name: "Dr. Rao", Address: "rao@example.edu"}},
		Subject: "Course Filled: Cloud Computing",
		Text:    "1. Asha (MCA001)",
		HTML:    "<table></table>",
		Attachments: []Attachment{
			{Filename: "Cloud_Computing_Students_2026-10-19.csv", ContentType: "text/csv", Content: []byte("S.No\n1\n")},
		},
	}
}

func TestSendgridMailerBuildsRequest(t *testing.T) {
	var captured rest.Request
	m := NewSendgridMailer("key", mail.Address{Name: "Selection", Address: "noreply@example.edu"})
	m.do = func(req rest.Request) (*rest.Response, error) {
		captured = req
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}

	require.NoError(t, m.Send(context.Background(), sampleMessage()))
	assert.Equal(t, rest.Method(http.MethodPost), captured.Method)

	var body struct {
		Subject     string `json:"subject"`
		Attachments []struct {
			Content  string `json:"content"`
			Filename string `json:"filename"`
		} `json:"attachments"`
	}
	require.NoError(t, json.Unmarshal(captured.Body, &body))
	require.Len(t, body.Attachments, 1)
	assert.Equal(t, "Cloud_Computing_Students_2026-10-19.csv", body.Attachments[0].Filename)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("S.No\n1\n")), body.Attachments[0].Content)
}

func TestSendgridMailerSurfacesFailures(t *testing.T) {
	m := NewSendgridMailer("key", mail.Address{Address: "noreply@example.edu"})
	m.do = func(req rest.Request) (*rest.Response, error) {
		return &rest.Response{StatusCode: http.StatusUnauthorized, Body: "bad key"}, nil
	}
	assert.Error(t, m.Send(context.Background(), sampleMessage()))

	m.do = func(req rest.Request) (*rest.Response, error) { return nil, errors.New("dial tcp") }
	assert.Error(t, m.Send(context.Background(), sampleMessage()))
}

func TestMailersRejectMissingRecipients(t *testing.T) {
	msg := sampleMessage()
	msg.To = nil
	assert.ErrorIs(t, NewLogMailer(zap.NewNop()).Send(context.Background(), msg), ErrNoRecipients)
	assert.ErrorIs(t, NewSendgridMailer("k", mail.Address{}).Send(context.Background(), msg), ErrNoRecipients)
}
