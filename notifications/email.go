package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/Dosada05/pyramid-ladder/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[Kind]string{
	KindChallenge:            "Nuevo reto en la pirámide",
	KindAccept:               "Reto aceptado",
	KindReject:               "Reto rechazado",
	KindCancel:               "Reto cancelado",
	KindCancelledDueToAccept: "Reto cancelado por aceptación de otro reto",
	KindRisky:                "Tu equipo está en riesgo",
}

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// mailSender delivers one HTML message to a list of recipients.
type mailSender interface {
	Send(to []string, subject, htmlBody string) error
}

type emailData struct {
	AttackerName string
	DefenderName string
	PyramidID    int
	ExpiryHours  int
}

// EmailNotifier mails team members about challenge lifecycle events. Kinds
// without a template are ignored.
type EmailNotifier struct {
	sender      mailSender
	templates   *template.Template
	expiryHours int
}

func NewEmailNotifier(cfg SMTPConfig, expiryHours int) (*EmailNotifier, error) {
	return newEmailNotifier(&smtpSender{cfg: cfg}, expiryHours)
}

func newEmailNotifier(sender mailSender, expiryHours int) (*EmailNotifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &EmailNotifier{sender: sender, templates: tmpl, expiryHours: expiryHours}, nil
}

func (n *EmailNotifier) Notify(_ context.Context, event Event) error {
	subject, ok := subjects[event.Kind]
	if !ok {
		return nil
	}
	to := recipients(event)
	if len(to) == 0 {
		return nil
	}

	data := emailData{PyramidID: event.PyramidID, ExpiryHours: n.expiryHours}
	if event.Attacker != nil {
		data.AttackerName = event.Attacker.DisplayName()
	}
	if event.Defender != nil {
		data.DefenderName = event.Defender.DisplayName()
	}

	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, string(event.Kind)+".html", data); err != nil {
		return fmt.Errorf("render %s email: %w", event.Kind, err)
	}
	return n.sender.Send(to, subject, body.String())
}

// recipients picks who hears about an event: the challenged team learns of
// new challenges, the challenger of the answer, both of cancellations.
func recipients(event Event) []string {
	var teams []*models.TeamSnapshot
	switch event.Kind {
	case KindChallenge, KindRisky:
		teams = append(teams, event.Defender)
	case KindAccept, KindReject:
		teams = append(teams, event.Attacker)
	case KindCancel, KindCancelledDueToAccept:
		teams = append(teams, event.Attacker, event.Defender)
	}

	seen := make(map[string]bool)
	var to []string
	for _, t := range teams {
		if t == nil {
			continue
		}
		for _, m := range t.Members {
			email := strings.TrimSpace(m.Email)
			if email == "" || seen[email] {
				continue
			}
			seen[email] = true
			to = append(to, email)
		}
	}
	return to
}

type smtpSender struct {
	cfg SMTPConfig
}

func (s *smtpSender) Send(to []string, subject, htmlBody string) error {
	msg := []byte("To: " + strings.Join(to, ", ") + "\r\n" +
		"From: " + s.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n" +
		"\r\n" +
		htmlBody + "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	var client *smtp.Client
	if s.cfg.Port == 465 {
		// Прямое TLS-соединение
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial: %w", err)
		}
		client, err = smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("smtp client: %w", err)
		}
	} else {
		// STARTTLS
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		client = c
		if err = client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	defer client.Quit()

	if s.cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
