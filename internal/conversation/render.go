package conversation

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
)

// defaultTemplates are used unless the clinic overrides a key.
var defaultTemplates = map[string]string{
	"welcome":             "Hi! Welcome to {{.Clinic}}. How can we help you today?",
	"main_menu":           "How can we help you?",
	"unrecognized":        "Sorry, I didn't understand. Please choose one of the options below.",
	"schedule_menu":       "Which service would you like to book?",
	"input_areas":         "Which areas would you like to treat? Reply with the numbers or names, separated by commas:{{range .OfferedAreas}}\n{{.N}}. {{.Name}}{{end}}",
	"available_days":      "{{.Service}}{{if .Areas}} ({{.Areas}}){{end}}: choose a day.",
	"select_time":         "Available times on {{.Date}}:",
	"confirm_booking":     "Please confirm your booking:\n{{.Service}}{{if .Areas}} ({{.Areas}}){{end}}\n{{.Date}} at {{.Time}}\n{{if .DiscountPct}}Price: {{.DiscountedPrice}} instead of {{.Price}} ({{.DiscountPct}}% off{{if .FirstSession}}, first session{{end}}){{else}}Price: {{.Price}}{{end}}",
	"booked":              "All set! Your {{.Service}} is booked for {{.AppointmentDate}} at {{.AppointmentTime}}. We will send you a reminder the day before.",
	"no_appointment":      "We couldn't find an upcoming appointment for this number.",
	"current_appointment": "Your next appointment: {{.Service}} on {{.AppointmentDate}} at {{.AppointmentTime}}. What would you like to do?",
	"select_new_date":     "Choose a new day for your {{.Service}}:",
	"select_new_time":     "Available times on {{.NewDate}}:",
	"confirm_reschedule":  "Move your {{.Service}} from {{.AppointmentDate}} at {{.AppointmentTime}} to {{.NewDate}} at {{.NewTime}}?",
	"rescheduled":         "Done! Your {{.Service}} is now on {{.AppointmentDate}} at {{.AppointmentTime}}.",
	"confirm_cancel":      "Cancel your {{.Service}} on {{.AppointmentDate}} at {{.AppointmentTime}}?",
	"cancelled":           "Your appointment on {{.AppointmentDate}} at {{.AppointmentTime}} was cancelled.",
	"faq_menu":            "What would you like to know?",
	"faq_answer":          "*{{.FAQQuestion}}*\n{{.FAQAnswer}}",
	"price_table":         "Our prices:{{range .Prices}}\n{{.Name}}: {{.Price}}{{range .Areas}}\n  - {{.Name}}: {{.Price}}{{end}}{{end}}{{if .FirstSessionPercent}}\nFirst session: {{.FirstSessionPercent}}% off.{{end}}{{range .Tiers}}\n{{.}}{{end}}",
	"human_handoff":       "A member of our team will reply here shortly. Send *menu* to go back to the automatic menu.",

	"notice_conflict":            "Sorry, that time is no longer available. Please pick another one.",
	"notice_error":               "Something went wrong on our side. Please try again.",
	"notice_no_services":         "Online booking is not available right now.",
	"notice_no_days":             "There are no available days in the coming weeks for this selection.",
	"notice_no_times":            "There are no times left on {{.Date}}{{.NewDate}}. Please choose another day.",
	"notice_invalid_areas":       "I couldn't match those areas. Please reply with the numbers from the list.",
	"notice_faq_not_found":       "Sorry, I couldn't find that question.",
	"notice_appointment_changed": "Your appointment was changed in the meantime. Please review it and try again.",
}

type areaLine struct {
	N     int
	Name  string
	Price string
}

type priceLine struct {
	Name  string
	Price string
	Areas []areaLine
}

// view is the data exposed to templates. Dates are already in DD/MM/YYYY.
type view struct {
	Clinic              string
	Service             string
	Areas               string
	OfferedAreas        []areaLine
	Date                string
	Time                string
	NewDate             string
	NewTime             string
	AppointmentDate     string
	AppointmentTime     string
	Price               string
	DiscountedPrice     string
	DiscountPct         int
	FirstSession        bool
	FAQQuestion         string
	FAQAnswer           string
	Prices              []priceLine
	FirstSessionPercent int
	Tiers               []string
}

// FormatCents renders integer cents as a price, e.g. "R$ 150,00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sR$ %d,%02d", sign, cents/100, cents%100)
}

func buildView(cfg *clinic.Config, sess *Session) view {
	v := view{
		Clinic:          cfg.Name,
		Date:            clinic.DisplayDate(sess.SelectedDate),
		Time:            sess.SelectedTime,
		NewDate:         clinic.DisplayDate(sess.SelectedNewDate),
		NewTime:         sess.SelectedNewTime,
		AppointmentDate: clinic.DisplayDate(sess.AppointmentDate),
		AppointmentTime: sess.AppointmentTime,
		Price:           FormatCents(sess.OriginalPriceCents),
		DiscountedPrice: FormatCents(sess.DiscountedPriceCents),
		DiscountPct:     sess.DiscountPct,
		FirstSession:    sess.DiscountReason == "first_session",
	}
	if svc, ok := cfg.Service(sess.Selection().ServiceID); ok {
		v.Service = svc.Name
		var names []string
		for _, id := range sess.SelectedAreaIDs {
			if a, ok := svc.Area(id); ok {
				names = append(names, a.Name)
			}
		}
		v.Areas = strings.Join(names, ", ")
		for i, id := range sess.OfferedAreas {
			if a, ok := svc.Area(id); ok {
				v.OfferedAreas = append(v.OfferedAreas, areaLine{N: i + 1, Name: a.Name})
			}
		}
	}
	if f, ok := cfg.FAQEntry(sess.SelectedFAQKey); ok {
		v.FAQQuestion = f.Question
		v.FAQAnswer = f.Answer
	}
	if sess.State == StatePriceTable {
		v.Prices = priceTable(cfg)
		if cfg.Discount != nil {
			v.FirstSessionPercent = cfg.Discount.FirstSessionPercent
			for _, tier := range cfg.Discount.Tiers {
				if tier.MaxAreas == 0 {
					v.Tiers = append(v.Tiers, fmt.Sprintf("%d or more areas: %d%% off.", tier.MinAreas, tier.Percent))
					continue
				}
				v.Tiers = append(v.Tiers, fmt.Sprintf("%d to %d areas: %d%% off.", tier.MinAreas, tier.MaxAreas, tier.Percent))
			}
		}
	}
	return v
}

func priceTable(cfg *clinic.Config) []priceLine {
	lines := make([]priceLine, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		line := priceLine{Name: svc.Name}
		if !svc.HasAreas() {
			line.Price = FormatCents(svc.PriceCents)
		} else {
			line.Price = "per area"
			for _, a := range svc.Areas {
				price := a.PriceCents
				if price == 0 {
					price = svc.PriceCents
				}
				line.Areas = append(line.Areas, areaLine{Name: a.Name, Price: FormatCents(price)})
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// renderTemplate executes the clinic override for key, falling back to the
// built-in template when the override is missing or broken.
func (e *Engine) renderTemplate(t *turn, key string, v view) string {
	if text, ok := t.cfg.Templates[key]; ok && text != "" {
		out, err := execute(key, text, v)
		if err == nil {
			return out
		}
		t.logger.Warn("conversation: clinic template failed, using default", "template", key, "error", err)
	}
	out, err := execute(key, defaultTemplates[key], v)
	if err != nil {
		t.logger.Error("conversation: render failed", "template", key, "error", err)
		return ""
	}
	return out
}

func execute(name, text string, v view) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// render builds the replies for a state: notices first, then the state's
// message carrying its options.
func (e *Engine) render(t *turn, s State) []OutgoingMessage {
	v := buildView(t.cfg, t.sess)

	out := make([]OutgoingMessage, 0, len(t.notices)+1)
	for _, key := range t.notices {
		if text := e.renderTemplate(t, key, v); text != "" {
			out = append(out, OutgoingMessage{Text: text})
		}
	}
	out = append(out, OutgoingMessage{
		Text:    e.renderTemplate(t, states[s].Template, v),
		Options: e.options(t, s),
	})
	return out
}
