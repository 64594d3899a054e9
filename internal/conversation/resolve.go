package conversation

import (
	"strconv"
	"strings"
)

// Intent is what an inbound message resolved to. ID is empty when the
// text could not be matched to an option.
type Intent struct {
	ID   string
	Text string
}

// Resolved reports whether the message matched an identifier.
func (i Intent) Resolved() bool { return i.ID != "" }

var shortcuts = map[string]string{
	"back":      OptionBack,
	"voltar":    OptionBack,
	"menu":      OptionHome,
	"home":      OptionHome,
	"inicio":    OptionHome,
	"início":    OptionHome,
	"human":     OptionHuman,
	"agent":     OptionHuman,
	"atendente": OptionHuman,
	"humano":    OptionHuman,
}

// Resolve matches an inbound message against the offered options, in order:
// explicit identifier, global shortcut, 1-based position, unique
// case-insensitive label substring. Anything else is passed through as text.
func Resolve(msg InboundMessage, options []Option) Intent {
	text := strings.TrimSpace(msg.Text)
	if id := strings.TrimSpace(msg.OptionID); id != "" {
		return Intent{ID: id, Text: text}
	}
	if text == "" {
		return Intent{}
	}
	lowered := strings.ToLower(text)

	if id, ok := shortcuts[lowered]; ok {
		return Intent{ID: id, Text: text}
	}

	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(options) {
		return Intent{ID: options[n-1].ID, Text: text}
	}

	if id, ok := uniqueLabelMatch(lowered, options); ok {
		return Intent{ID: id, Text: text}
	}
	return Intent{Text: text}
}

// uniqueLabelMatch resolves only when exactly one label contains the text.
func uniqueLabelMatch(lowered string, options []Option) (string, bool) {
	match := ""
	for _, opt := range options {
		if !strings.Contains(strings.ToLower(opt.Label), lowered) {
			continue
		}
		if match != "" {
			return "", false
		}
		match = opt.ID
	}
	return match, match != ""
}

// applyPrefix copies a value carried in a prefixed identifier into the session.
func applyPrefix(sess *Session, id string) {
	switch {
	case strings.HasPrefix(id, PrefixNewDay):
		sess.SelectedNewDate = strings.TrimPrefix(id, PrefixNewDay)
	case strings.HasPrefix(id, PrefixNewTime):
		sess.SelectedNewTime = strings.TrimPrefix(id, PrefixNewTime)
	case strings.HasPrefix(id, PrefixDay):
		sess.SelectedDate = strings.TrimPrefix(id, PrefixDay)
	case strings.HasPrefix(id, PrefixTime):
		sess.SelectedTime = strings.TrimPrefix(id, PrefixTime)
	case strings.HasPrefix(id, PrefixFAQ):
		sess.SelectedFAQKey = strings.TrimPrefix(id, PrefixFAQ)
	case strings.HasPrefix(id, PrefixService):
		serviceID := strings.TrimPrefix(id, PrefixService)
		if len(sess.SelectedServiceIDs) == 0 || sess.SelectedServiceIDs[0] != serviceID {
			sess.SelectedAreaIDs = nil
		}
		sess.SelectedServiceIDs = []string{serviceID}
	}
}
