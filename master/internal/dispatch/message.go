package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// message is the rendered subject/body pair the transports share.
// Channels that carry no subject (sms, chat) use Body alone.
type message struct {
	Subject string
	Body    string
}

var bodyTmpl = template.Must(template.New("body").Parse(
	`Alarm {{.AlarmID}}: check "{{.Check}}" is in trouble in zone {{.Zone}} ({{.Datacenter}}).

Observed at {{.When}}.
{{- if .Details}}

Details:
{{- range .Details}}
  {{.}}
{{- end}}
{{- end}}

This is event {{.NumEvents}} on this alarm.
`))

func renderMessage(datacenter string, n Notification) message {
	subject := fmt.Sprintf("[vantage] Alarm %d: %s in %s", n.Alarm.ID, n.Event.Check, n.Event.Zone)
	if n.Alarm.NumNotifications > 0 {
		subject = "Re: " + subject
	}

	details := make([]string, 0, len(n.Event.Data))
	for k, v := range n.Event.Data {
		details = append(details, k+": "+v)
	}
	sort.Strings(details)

	var b strings.Builder
	// The template only fails on a type mismatch, which is a
	// programming error caught by the package tests.
	_ = bodyTmpl.Execute(&b, struct {
		AlarmID    int
		Check      string
		Zone       string
		Datacenter string
		When       string
		Details    []string
		NumEvents  int
	}{
		AlarmID:    n.Alarm.ID,
		Check:      n.Event.Check,
		Zone:       n.Event.Zone,
		Datacenter: datacenter,
		When:       n.Event.Created.Format("2006-01-02 15:04:05 MST"),
		Details:    details,
		NumEvents:  n.Alarm.NumEvents,
	})
	return message{Subject: subject, Body: b.String()}
}
