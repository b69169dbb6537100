package mail

import (
	"crypto/tls"

	gomail "github.com/go-mail/mail"
)

// Sender delivers a single outbound message. Failure is returned to the
// caller so flows that persisted a pending token can roll it back.
type Sender interface {
	Send(to, subject, html, text string) error
}

// SMTPSender implements Sender over SMTP with STARTTLS negotiation.
type SMTPSender struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(host string, port int, user, pass, from string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, User: user, Pass: pass, From: from}
}

// Send delivers a multipart (text + html) message.
func (s *SMTPSender) Send(to, subject, html, text string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	if text != "" {
		m.SetBody("text/plain", text)
	}
	if html != "" {
		if text == "" {
			m.SetBody("text/html", html)
		} else {
			m.AddAlternative("text/html", html)
		}
	}

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{ServerName: s.Host}
	return d.DialAndSend(m)
}
