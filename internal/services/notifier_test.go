package services

import (
	"bytes"
	"context"
	"log"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pennywise/backend/internal/config"
	"github.com/pennywise/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPasscodeMessage(t *testing.T) {
	raw, err := buildPasscodeMessage("no-reply@example.com", "alice@example.com", "123456", 10*time.Minute, models.IntentPasswordReset)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Your password reset code", subject)
	assert.Equal(t, "alice@example.com", msg.Header.Get("To"))

	_, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)

	reader := multipart.NewReader(msg.Body, params["boundary"])
	var parts []string
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		var body bytes.Buffer
		_, err = body.ReadFrom(part)
		require.NoError(t, err)
		parts = append(parts, part.Header.Get("Content-Type")+"|"+body.String())
	}

	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "text/plain"))
	assert.Contains(t, parts[0], "123456")
	assert.Contains(t, parts[0], "10 minutes")
	assert.True(t, strings.HasPrefix(parts[1], "text/html"))
	assert.Contains(t, parts[1], "123456")
}

func TestNewNotifier(t *testing.T) {
	_, isLog := NewNotifier(config.SMTPConfig{}).(LogNotifier)
	assert.True(t, isLog)

	_, isLog = NewNotifier(config.SMTPConfig{Host: "smtp.example.com", Username: "user"}).(LogNotifier)
	assert.True(t, isLog, "username without password is unconfigured")

	_, isSMTP := NewNotifier(config.SMTPConfig{Host: "smtp.example.com", Port: 587}).(*SMTPNotifier)
	assert.True(t, isSMTP)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	err := LogNotifier{}.SendPasscode(context.Background(), "alice@example.com", "654321", 90*time.Second, models.IntentSignup)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "signup verification code for alice@example.com: 654321 (expires in 2 minutes)")
}

func TestSMTPNotifier_DialFailure(t *testing.T) {
	notifier := &SMTPNotifier{cfg: config.SMTPConfig{Host: "127.0.0.1", Port: 1, From: "no-reply@example.com"}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := notifier.SendPasscode(ctx, "alice@example.com", "123456", time.Minute, models.IntentSignup)
	assert.ErrorContains(t, err, "dial smtp")
}
