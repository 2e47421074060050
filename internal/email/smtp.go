package email

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Configured reports whether enough settings are present to attempt delivery.
func (c Config) Configured() bool {
	return c.Host != "" && c.From != ""
}

// Validate returns an error naming the first missing or malformed setting.
func (c Config) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "smtp.host")
	}
	if c.From == "" {
		missing = append(missing, "smtp.from")
	}
	if len(missing) > 0 {
		return fmt.Errorf("no SMTP configuration found — set %s", strings.Join(missing, ", "))
	}
	if !ValidateEmail(c.From) {
		return fmt.Errorf("invalid smtp.from address: %q", c.From)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid smtp.port %d", c.Port)
	}
	return nil
}

// Attachment is an in-memory file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message holds the email content and recipients.
type Message struct {
	To          []string
	CC          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Validate returns an error if the message is malformed.
func (m *Message) Validate() error {
	if len(m.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}
	for _, addr := range m.To {
		if !ValidateEmail(addr) {
			return fmt.Errorf("invalid recipient email address: %q", addr)
		}
	}
	for _, addr := range m.CC {
		if !ValidateEmail(addr) {
			return fmt.Errorf("invalid CC email address: %q", addr)
		}
	}
	return nil
}

// Sender delivers a message. SMTPSender is the production implementation.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender sends mail through the configured relay. Port 465 uses
// implicit TLS, any other port uses STARTTLS when offered.
type SMTPSender struct {
	cfg Config
	// sendMail is smtp.SendMail unless replaced in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender validates cfg and returns a sender for it.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}, nil
}

// Send validates and delivers msg.
func (s *SMTPSender) Send(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	raw, err := Build(s.cfg.From, msg)
	if err != nil {
		return fmt.Errorf("could not build email: %w", err)
	}

	recipients := make([]string, 0, len(msg.To)+len(msg.CC))
	recipients = append(recipients, msg.To...)
	recipients = append(recipients, msg.CC...)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if s.cfg.Port == 465 {
		return sendTLS(addr, auth, s.cfg.From, recipients, raw)
	}
	if err := s.sendMail(addr, auth, s.cfg.From, recipients, raw); err != nil {
		return fmt.Errorf("SMTP delivery to %s failed: %w", addr, err)
	}
	return nil
}

// Build renders msg as a MIME message from the given sender.
func Build(from string, msg Message) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	textHeader := make(textproto.MIMEHeader)
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		attachHeader := make(textproto.MIMEHeader)
		attachHeader.Set("Content-Type", ct)
		attachHeader.Set("Content-Transfer-Encoding", "base64")
		attachHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
		part, err := writer.CreatePart(attachHeader)
		if err != nil {
			return nil, err
		}

		encoded := base64.StdEncoding.EncodeToString(a.Data)
		// 76-char lines per RFC 2045
		for i := 0; i < len(encoded); i += 76 {
			end := i + 76
			if end > len(encoded) {
				end = len(encoded)
			}
			if _, err := part.Write([]byte(encoded[i:end] + "\r\n")); err != nil {
				return nil, err
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	var h strings.Builder
	fmt.Fprintf(&h, "From: %s\r\n", from)
	fmt.Fprintf(&h, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		fmt.Fprintf(&h, "Cc: %s\r\n", strings.Join(msg.CC, ", "))
	}
	fmt.Fprintf(&h, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	h.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&h, "Content-Type: multipart/mixed; boundary=%q\r\n", writer.Boundary())
	h.WriteString("\r\n")

	return append([]byte(h.String()), body.Bytes()...), nil
}

func sendTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, _ := net.SplitHostPort(addr)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("TLS connection failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("SMTP client creation failed: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
