package dispatch

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"os/exec"
	"strings"
)

// EmailConfig selects the mail transport. SMTPAddr wins when both are
// set; SendmailPath is the fallback for hosts without a relay.
type EmailConfig struct {
	// SMTPAddr is the host:port of the outbound relay.
	SMTPAddr string `yaml:"smtp_addr"`

	// SendmailPath is the path of a sendmail-compatible binary.
	SendmailPath string `yaml:"sendmail_path"`

	// From is the sender address on every notification.
	From string `yaml:"from"`
}

// Email notifies contacts whose medium ends in "email".
type Email struct {
	cfg        EmailConfig
	datacenter string

	// send delivers one assembled RFC 5322 message; tests swap it out.
	send func(to string, msg []byte) error
}

func NewEmail(cfg EmailConfig, datacenter string) (*Email, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("dispatch: email: from is required")
	}
	if cfg.SMTPAddr == "" && cfg.SendmailPath == "" {
		return nil, fmt.Errorf("dispatch: email: smtp_addr or sendmail_path is required")
	}
	e := &Email{cfg: cfg, datacenter: datacenter}
	if cfg.SMTPAddr != "" {
		e.send = e.sendSMTP
	} else {
		e.send = e.sendSendmail
	}
	return e, nil
}

func (e *Email) Name() string { return "email" }

func (e *Email) AcceptsMedium(medium string) bool {
	return mediumHasSuffix(medium, "email")
}

func (e *Email) SanitizeAddress(address string) (string, error) {
	addr, err := mail.ParseAddress(address)
	if err != nil {
		return "", fmt.Errorf("not a mail address: %w", err)
	}
	return addr.Address, nil
}

func (e *Email) Notify(ctx context.Context, n Notification) error {
	m := renderMessage(e.datacenter, n)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", n.Contact.Address)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Body)

	if err := e.send(n.Contact.Address, []byte(b.String())); err != nil {
		return fmt.Errorf("send to %s: %w", n.Contact.Address, err)
	}
	return nil
}

func (e *Email) sendSMTP(to string, msg []byte) error {
	return smtp.SendMail(e.cfg.SMTPAddr, nil, e.cfg.From, []string{to}, msg)
}

func (e *Email) sendSendmail(to string, msg []byte) error {
	cmd := exec.Command(e.cfg.SendmailPath, "-f", e.cfg.From, to)
	cmd.Stdin = strings.NewReader(string(msg))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", e.cfg.SendmailPath, err, out)
	}
	return nil
}
