package reminders

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
)

// TemplateKey is the clinic template override used for reminder text.
const TemplateKey = "reminder"

// templateData is exposed to clinic reminder templates.
type templateData struct {
	Clinic  string
	Service string
	Date    string
	Time    string
}

// MessageTemplate renders the default reminder text. Dates are shown as DD/MM/YYYY.
func MessageTemplate(r *Reminder, clinicName string) string {
	service := r.ServiceName
	if service == "" {
		service = "appointment"
	}
	if clinicName == "" {
		return fmt.Sprintf(
			"Hi! This is a reminder of your %s on %s at %s. Reply *menu* if you need to reschedule or cancel.",
			service, clinic.DisplayDate(r.Date), r.Start,
		)
	}
	return fmt.Sprintf(
		"Hi! This is a reminder of your %s at %s on %s at %s. Reply *menu* if you need to reschedule or cancel.",
		service, clinicName, clinic.DisplayDate(r.Date), r.Start,
	)
}

// RenderMessage uses the clinic's "reminder" template when it has one and
// falls back to MessageTemplate.
func RenderMessage(r *Reminder, cfg *clinic.Config) (string, error) {
	if cfg == nil {
		return MessageTemplate(r, ""), nil
	}
	text, ok := cfg.Templates[TemplateKey]
	if !ok || text == "" {
		return MessageTemplate(r, cfg.Name), nil
	}
	tmpl, err := template.New(TemplateKey).Parse(text)
	if err != nil {
		return "", fmt.Errorf("reminders: parse template: %w", err)
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, templateData{
		Clinic:  cfg.Name,
		Service: r.ServiceName,
		Date:    clinic.DisplayDate(r.Date),
		Time:    r.Start,
	})
	if err != nil {
		return "", fmt.Errorf("reminders: render template: %w", err)
	}
	return buf.String(), nil
}
