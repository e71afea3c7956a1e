package notify

import (
	"bytes"
	"context"
	"text/template"

	"github.com/zjoart/churpay/internal/church"
)

var (
	approvalTmpl = template.Must(template.New("approval").Parse(`Dear {{.Name}},

Your application to register {{.Church}} on ChurPay has been approved.

Set the password for your church admin account here:
{{.Link}}

This link can be used once and expires soon.
`))

	rejectionTmpl = template.Must(template.New("rejection").Parse(`Dear {{.Name}},

Your application to register {{.Church}} on ChurPay was not approved.

Reason: {{.Reason}}

You are welcome to apply again once the issue has been resolved.
`))
)

// ChurchNotifier emails church admins about the outcome of their application.
type ChurchNotifier struct {
	sender Sender
}

func NewChurchNotifier(sender Sender) *ChurchNotifier {
	return &ChurchNotifier{sender: sender}
}

type letter struct {
	Name   string
	Church string
	Link   string
	Reason string
}

func (n *ChurchNotifier) SendApprovalNotification(ctx context.Context, c church.Church, setupURL string) error {
	body, err := render(approvalTmpl, letter{Name: c.AdminFirstName, Church: c.Name, Link: setupURL})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, c.AdminEmail, c.Name+" has been approved", body)
}

func (n *ChurchNotifier) SendRejectionNotification(ctx context.Context, c church.Church, reason string) error {
	body, err := render(rejectionTmpl, letter{Name: c.AdminFirstName, Church: c.Name, Reason: reason})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, c.AdminEmail, "Update on your ChurPay application", body)
}

func render(t *template.Template, data letter) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
