package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const layout = `<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#1f2937;max-width:600px;margin:0 auto">
{{template "content" .}}
<p style="color:#6b7280;font-size:12px">AI Bootcamp</p>
</body></html>`

var (
	confirmationTmpl = mustParse("confirmation", `{{define "content"}}
<h2>You're registered, {{.Name}}!</h2>
<p>Your payment was received and your seat for <strong>{{.EventTitle}}</strong> is confirmed.</p>
<p><strong>When:</strong> {{.EventDate}}</p>
{{if .MeetingLink}}<p><strong>Join link:</strong> <a href="{{.MeetingLink}}">{{.MeetingLink}}</a></p>{{end}}
{{if .DashboardURL}}<p>You can review your registrations any time at <a href="{{.DashboardURL}}">{{.DashboardURL}}</a>.</p>{{end}}
{{end}}`)

	reminderTmpl = mustParse("reminder", `{{define "content"}}
<h2>Hi {{.Name}}, your seat is waiting</h2>
<p>You started registering for <strong>{{.EventTitle}}</strong> on {{.EventDate}} but the payment is not complete yet.</p>
<p><a href="{{.CheckoutURL}}">Complete your registration</a></p>
{{end}}`)

	adminTmpl = mustParse("admin", `{{define "content"}}
<h2>New paid registration</h2>
<p><strong>{{.Name}}</strong> ({{.Email}}) registered for <strong>{{.EventTitle}}</strong> ({{.EventDate}}).</p>
<p>Registration: {{.RegistrationID}}</p>
{{end}}`)
)

func mustParse(name, content string) *template.Template {
	return template.Must(template.Must(template.New(name).Parse(layout)).Parse(content))
}

// templateData is the data every notification template renders from.
type templateData struct {
	RegistrationID string
	Name           string
	Email          string
	EventTitle     string
	EventDate      string
	MeetingLink    string
	DashboardURL   string
	CheckoutURL    string
}

func formatEventDate(t time.Time) string {
	if t.IsZero() {
		return "to be announced"
	}
	return t.UTC().Format("Monday, January 2, 2006 at 3:04 PM MST")
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}
