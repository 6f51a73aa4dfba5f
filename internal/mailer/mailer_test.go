package mailer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubject(t *testing.T) {
	ts := time.Date(2024, time.January, 1, 9, 5, 3, 0, time.UTC)

	assert.Equal(t, "1st January 2024 - 09:05:03", RenderSubject("", ts))
	assert.Equal(t, "Load tests 1st January 2024 (09:05:03) 1st January 2024",
		RenderSubject("Load tests {startDate} ({startTime}) {startDate}", ts))
	assert.Equal(t, "static", RenderSubject("static", ts))
}

func TestOrdinal(t *testing.T) {
	tests := map[int]string{
		1: "1st", 2: "2nd", 3: "3rd", 4: "4th",
		11: "11th", 12: "12th", 13: "13th",
		21: "21st", 22: "22nd", 23: "23rd", 31: "31st",
	}
	for n, want := range tests {
		assert.Equal(t, want, ordinal(n))
	}
}

func TestBuildMessage(t *testing.T) {
	msg := &Message{
		From:     "fusillade@example.com",
		To:       []string{"ops@example.com"},
		Subject:  "1st January 2024 - 00:00:00",
		HTMLBody: "<h1>Digest</h1>",
		TextBody: "Digest",
		Attachments: []Attachment{
			{Filename: "load-20240101-000000.html", Content: []byte("<html>report</html>"), ContentType: "text/html; charset=UTF-8"},
		},
	}

	gm, err := buildMessage(msg)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = gm.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "To: ops@example.com")
	assert.Contains(t, raw, "Subject: 1st January 2024 - 00:00:00")
	assert.Contains(t, raw, `filename="load-20240101-000000.html"`)
	assert.Contains(t, raw, "multipart/alternative")
}

func TestBuildMessage_Invalid(t *testing.T) {
	_, err := buildMessage(nil)
	assert.Error(t, err)

	_, err = buildMessage(&Message{Subject: "no recipients"})
	assert.Error(t, err)
}

func TestNewSMTPMailer(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{})
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.Equal(t, 587, m.dialer.Port)
	assert.True(t, m.dialer.TLSConfig.InsecureSkipVerify)
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.invalid"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Send(ctx, &Message{To: []string{"ops@example.com"}, Subject: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNopMailer(t *testing.T) {
	var m Mailer = NopMailer{}
	assert.NoError(t, m.Send(context.Background(), &Message{Subject: "dropped"}))
}
