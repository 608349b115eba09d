package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"html/template"
	"log"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/pennywise/backend/internal/config"
	"github.com/pennywise/backend/internal/models"
)

// Notifier delivers a plaintext passcode to its owner.
type Notifier interface {
	SendPasscode(ctx context.Context, email, code string, ttl time.Duration, intent models.PasscodeIntent) error
}

// NewNotifier returns an SMTP notifier when mail delivery is configured and a
// LogNotifier otherwise.
func NewNotifier(cfg config.SMTPConfig) Notifier {
	if !cfg.Enabled() {
		log.Printf("[MAILER] SMTP not configured, passcodes will be written to the log")
		return LogNotifier{}
	}
	return &SMTPNotifier{cfg: cfg}
}

// LogNotifier writes passcodes to the process log. Development only.
type LogNotifier struct{}

func (LogNotifier) SendPasscode(_ context.Context, email, code string, ttl time.Duration, intent models.PasscodeIntent) error {
	log.Printf("[MAILER] %s code for %s: %s (expires in %d minutes)", intent.Label(), email, code, ttlMinutes(ttl))
	return nil
}

// SMTPNotifier sends multipart text and HTML mail over SMTP, upgrading with
// STARTTLS when offered or dialing TLS directly when ImplicitTLS is set.
type SMTPNotifier struct {
	cfg config.SMTPConfig
}

func (n *SMTPNotifier) SendPasscode(ctx context.Context, email, code string, ttl time.Duration, intent models.PasscodeIntent) error {
	message, err := buildPasscodeMessage(n.cfg.From, email, code, ttl, intent)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	tlsConfig := &tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if n.cfg.ImplicitTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if !n.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if n.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(email); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

var passcodeHTML = template.Must(template.New("passcode").Parse(
	`<p>Your {{.Label}} code is:</p><p style="font-size:24px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>` +
		`<p>It expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>`))

func buildPasscodeMessage(from, to, code string, ttl time.Duration, intent models.PasscodeIntent) ([]byte, error) {
	minutes := ttlMinutes(ttl)

	var html bytes.Buffer
	err := passcodeHTML.Execute(&html, struct {
		Label   string
		Code    string
		Minutes int
	}{intent.Label(), code, minutes})
	if err != nil {
		return nil, err
	}

	boundary, err := randomBoundary()
	if err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", "Your "+intent.Label()+" code"))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n", boundary)
	fmt.Fprintf(&msg, "Your %s code is %s. It expires in %d minutes.\r\n", intent.Label(), code, minutes)

	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n", boundary)
	msg.Write(html.Bytes())
	fmt.Fprintf(&msg, "\r\n--%s--\r\n", boundary)

	return msg.Bytes(), nil
}

func randomBoundary() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func ttlMinutes(ttl time.Duration) int {
	return int((ttl + time.Minute - 1) / time.Minute)
}
