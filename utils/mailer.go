package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cppla/discussion/config"
)

// ErrSMTPNotConfigured is returned by SendMail when no SMTP host or sender is set.
var ErrSMTPNotConfigured = errors.New("smtp not configured")

// SendMail sends a plain text email using the SMTP settings from config.
func SendMail(to, subject, body string) error {
	c := config.Get().SMTP
	if c.SMTPHost == "" || c.SMTPFrom == "" {
		return ErrSMTPNotConfigured
	}
	addr := net.JoinHostPort(c.SMTPHost, strconv.Itoa(c.SMTPPort))
	auth := smtp.PlainAuth("", c.SMTPUsername, c.SMTPPassword, c.SMTPHost)
	msg := BuildMessage(c.SMTPFromName, c.SMTPFrom, to, subject, body)

	if !c.SMTPTLS {
		return smtp.SendMail(addr, auth, c.SMTPFrom, []string{to}, msg)
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	client, err := smtp.NewClient(conn, c.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.SMTPHost}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if c.SMTPUsername != "" {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(c.SMTPFrom); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// BuildMessage renders a UTF-8 plain text message with encoded headers.
func BuildMessage(fromName, from, to, subject, body string) []byte {
	if fromName == "" {
		fromName = "Discussions"
	}
	sender := mail.Address{Name: fromName, Address: from}

	var b strings.Builder
	b.WriteString("From: " + sender.String() + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}
