package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strings"
	"sync"
	"time"
)

var ErrNotConfigured = errors.New("mailer missing configuration")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	// UseTLS selects implicit TLS (port 465 style). Otherwise STARTTLS is used
	// when the server offers it.
	UseTLS bool
	Brand  string
}

// PasswordResetMailer delivers password reset links over SMTP. One instance
// is shared by all requests; connection settings are resolved on first use.
type PasswordResetMailer struct {
	cfg    Config
	dialer net.Dialer
	now    func() time.Time

	once      sync.Once
	initErr   error
	addr      string
	envelope  string
	auth      smtp.Auth
	tlsConfig *tls.Config
}

func NewPasswordResetMailer(cfg Config) *PasswordResetMailer {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.From == "" {
		cfg.From = strings.TrimSpace(cfg.Username)
	}
	if strings.TrimSpace(cfg.Brand) == "" {
		cfg.Brand = "Upay2Home"
	}
	return &PasswordResetMailer{cfg: cfg, now: time.Now}
}

func (m *PasswordResetMailer) resolve() error {
	m.once.Do(func() {
		if m.cfg.Host == "" || m.cfg.Port == "" || m.cfg.From == "" {
			m.initErr = ErrNotConfigured
			return
		}
		from, err := netmail.ParseAddress(m.cfg.From)
		if err != nil {
			m.initErr = fmt.Errorf("parse sender %q: %w", m.cfg.From, err)
			return
		}
		m.envelope = from.Address
		m.addr = net.JoinHostPort(m.cfg.Host, m.cfg.Port)
		m.tlsConfig = &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
		if m.cfg.Username != "" || m.cfg.Password != "" {
			m.auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		}
	})
	return m.initErr
}

// SendPasswordReset emails the reset link to a single recipient. The context
// bounds the whole SMTP conversation.
func (m *PasswordResetMailer) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	if m == nil {
		return ErrNotConfigured
	}
	if err := m.resolve(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderPasswordReset(passwordResetData{
		Name:      name,
		Brand:     m.cfg.Brand,
		ResetURL:  resetURL,
		ExpiresIn: "1 hour",
	})
	if err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}

	msg, err := buildMessage(m.cfg.From, to, passwordResetSubject, body, m.now())
	if err != nil {
		return err
	}

	return m.deliver(ctx, to, msg)
}

func (m *PasswordResetMailer) deliver(ctx context.Context, to string, msg []byte) error {
	conn, err := m.dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if m.cfg.UseTLS {
		tlsConn := tls.Client(conn, m.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("smtp tls handshake: %w", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer client.Close()

	if !m.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(m.tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if m.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(m.auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(m.envelope); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to, subject, htmlBody string, now time.Time) ([]byte, error) {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(from, "\r\n") {
		return nil, errors.New("mail: header injection in address")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}
