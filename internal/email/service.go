// Package email sends outbound notifications via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email sending can be attempted. The
// rest of the application treats an unconfigured service as a no-op
// sink, not an error.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart message with a plain-text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	boundary := "boundary-lahtotiedot"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// SubmissionData feeds the representative notification sent after a
// customer submits their form.
type SubmissionData struct {
	CustomerName  string
	CustomerEmail string
	FormURL       string
}

// SendSubmissionNotification tells a customer's representative that a
// new form version has arrived.
func (s *Service) SendSubmissionNotification(to string, data SubmissionData) error {
	subject := fmt.Sprintf("Lomake saapunut asiakkaalta %s", data.CustomerName)

	text := fmt.Sprintf(
		"Hei,\r\n\r\nAsiakas %s (%s) on lähettänyt lomakkeen lähtötiedot.\r\n\r\n"+
			"Voit tarkastella täytettyä lomaketta seuraavasta linkistä:\r\n%s\r\n\r\n"+
			"Terveisin,\r\nLähtötiedot-järjestelmä",
		data.CustomerName, data.CustomerEmail, data.FormURL,
	)

	html, err := renderTemplate(submissionEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render submission template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const submissionEmailTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background-color: #f4f4f4; padding: 20px; border-radius: 5px; margin-bottom: 20px; }
    .content { padding: 20px 0; }
    .button { display: inline-block; padding: 12px 24px; background-color: #007bff; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
    .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; color: #666; font-size: 14px; }
    .link { word-break: break-all; color: #007bff; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h2>Uusi lomake saapunut</h2>
    </div>
    <div class="content">
      <p>Hei,</p>
      <p>Asiakas <strong>{{.CustomerName}}</strong> ({{.CustomerEmail}}) on lähettänyt lomakkeen lähtötiedot.</p>
      <p>Voit tarkastella täytettyä lomaketta alla olevasta linkistä:</p>
      <p><a href="{{.FormURL}}" class="button">Avaa lomake</a></p>
      <p>Tai kopioi tämä linkki selaimen osoitepalkkiin:</p>
      <p class="link">{{.FormURL}}</p>
    </div>
    <div class="footer">
      <p>Terveisin,<br>Lähtötiedot-järjestelmä</p>
    </div>
  </div>
</body>
</html>`
