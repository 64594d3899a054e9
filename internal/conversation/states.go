package conversation

import "strings"

// State is a node in the conversation graph. There is no terminal state:
// completed flows return to a menu.
type State string

const (
	StateWelcome                State = "WELCOME"
	StateMainMenu               State = "MAIN_MENU"
	StateScheduleMenu           State = "SCHEDULE_MENU"
	StateInputAreas             State = "INPUT_AREAS"
	StateAvailableDays          State = "AVAILABLE_DAYS"
	StateSelectTime             State = "SELECT_TIME"
	StateConfirmBooking         State = "CONFIRM_BOOKING"
	StateBooked                 State = "BOOKED"
	StateRescheduleLookup       State = "RESCHEDULE_LOOKUP"
	StateShowCurrentAppointment State = "SHOW_CURRENT_APPOINTMENT"
	StateSelectNewDate          State = "SELECT_NEW_DATE"
	StateSelectNewTime          State = "SELECT_NEW_TIME"
	StateConfirmReschedule      State = "CONFIRM_RESCHEDULE"
	StateRescheduled            State = "RESCHEDULED"
	StateConfirmCancel          State = "CONFIRM_CANCEL"
	StateCancelled              State = "CANCELLED"
	StateFAQMenu                State = "FAQ_MENU"
	StateFAQAnswer              State = "FAQ_ANSWER"
	StatePriceTable             State = "PRICE_TABLE"
	StateHumanHandoff           State = "HUMAN_HANDOFF"
	StateUnrecognized           State = "UNRECOGNIZED"
)

// Reserved option identifiers shared by every state.
const (
	OptionBack  = "back"
	OptionHome  = "menu"
	OptionHuman = "human"
)

// Identifier prefixes that carry a value into the session.
const (
	PrefixService = "service_"
	PrefixDay     = "day_"
	PrefixTime    = "time_"
	PrefixNewDay  = "newday_"
	PrefixNewTime = "newtime_"
	PrefixFAQ     = "faq_"
)

// Option is one selectable choice: a stable identifier and a display label.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// optionSource names the session or catalog list a state offers as options.
type optionSource int

const (
	optionsStatic optionSource = iota
	optionsServices
	optionsDays
	optionsTimes
	optionsNewDays
	optionsNewTimes
	optionsFAQ
)

// StateDef is the immutable definition of one state.
type StateDef struct {
	// Template is the message template key rendered on entry.
	Template string
	// Options are offered in addition to any dynamic ones.
	Options []Option
	source  optionSource
	// Transitions maps a resolved identifier, or an identifier prefix, to the next state.
	Transitions map[string]State
	// Fallback is used when input cannot be resolved.
	Fallback State
	// Previous is the target of the "back" shortcut; empty means back is a no-op.
	Previous State
	// FreeText is the next state when the state accepts unresolved text.
	FreeText State
	// Quiet suppresses the reply when the state transitions to itself.
	Quiet bool
}

var mainMenuOptions = []Option{
	{ID: "schedule", Label: "Book an appointment"},
	{ID: "reschedule", Label: "Reschedule or cancel"},
	{ID: "prices", Label: "Price table"},
	{ID: "faq", Label: "Questions"},
	{ID: OptionHuman, Label: "Talk to our team"},
}

var mainMenuTransitions = map[string]State{
	"schedule":   StateScheduleMenu,
	"reschedule": StateRescheduleLookup,
	"prices":     StatePriceTable,
	"faq":        StateFAQMenu,
}

var backToMenu = []Option{{ID: OptionHome, Label: "Main menu"}}

func withMenu(extra map[string]State) map[string]State {
	out := make(map[string]State, len(mainMenuTransitions)+len(extra))
	for k, v := range mainMenuTransitions {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// states is built once and never mutated.
var states = map[State]StateDef{
	StateWelcome: {
		Template:    "welcome",
		Options:     mainMenuOptions,
		Transitions: mainMenuTransitions,
		Fallback:    StateWelcome,
	},
	StateMainMenu: {
		Template:    "main_menu",
		Options:     mainMenuOptions,
		Transitions: mainMenuTransitions,
		Fallback:    StateUnrecognized,
	},
	StateUnrecognized: {
		Template:    "unrecognized",
		Options:     mainMenuOptions,
		Transitions: mainMenuTransitions,
		Fallback:    StateUnrecognized,
		Previous:    StateMainMenu,
	},
	StateScheduleMenu: {
		Template:    "schedule_menu",
		source:      optionsServices,
		Transitions: map[string]State{PrefixService: StateInputAreas},
		Fallback:    StateUnrecognized,
		Previous:    StateMainMenu,
	},
	StateInputAreas: {
		Template: "input_areas",
		Fallback: StateInputAreas,
		Previous: StateScheduleMenu,
		FreeText: StateAvailableDays,
	},
	StateAvailableDays: {
		Template:    "available_days",
		source:      optionsDays,
		Transitions: map[string]State{PrefixDay: StateSelectTime},
		Fallback:    StateUnrecognized,
		Previous:    StateScheduleMenu,
	},
	StateSelectTime: {
		Template:    "select_time",
		source:      optionsTimes,
		Transitions: map[string]State{PrefixTime: StateConfirmBooking},
		Fallback:    StateUnrecognized,
		Previous:    StateAvailableDays,
	},
	StateConfirmBooking: {
		Template: "confirm_booking",
		Options: []Option{
			{ID: "confirm", Label: "Confirm"},
			{ID: "change_time", Label: "Another time"},
			{ID: OptionHome, Label: "Main menu"},
		},
		Transitions: map[string]State{"confirm": StateBooked, "change_time": StateSelectTime},
		Fallback:    StateUnrecognized,
		Previous:    StateSelectTime,
	},
	StateBooked: {
		Template:    "booked",
		Options:     mainMenuOptions,
		Transitions: mainMenuTransitions,
		Fallback:    StateUnrecognized,
	},
	StateRescheduleLookup: {
		Template: "no_appointment",
		Options: []Option{
			{ID: "schedule", Label: "Book an appointment"},
			{ID: OptionHome, Label: "Main menu"},
		},
		Transitions: map[string]State{"schedule": StateScheduleMenu},
		Fallback:    StateUnrecognized,
		Previous:    StateMainMenu,
	},
	StateShowCurrentAppointment: {
		Template: "current_appointment",
		Options: []Option{
			{ID: "reschedule", Label: "Reschedule"},
			{ID: "cancel", Label: "Cancel appointment"},
			{ID: OptionHome, Label: "Main menu"},
		},
		Transitions: map[string]State{"reschedule": StateSelectNewDate, "cancel": StateConfirmCancel},
		Fallback:    StateUnrecognized,
		Previous:    StateMainMenu,
	},
	StateSelectNewDate: {
		Template:    "select_new_date",
		source:      optionsNewDays,
		Transitions: map[string]State{PrefixNewDay: StateSelectNewTime},
		Fallback:    StateUnrecognized,
		Previous:    StateShowCurrentAppointment,
	},
	StateSelectNewTime: {
		Template:    "select_new_time",
		source:      optionsNewTimes,
		Transitions: map[string]State{PrefixNewTime: StateConfirmReschedule},
		Fallback:    StateUnrecognized,
		Previous:    StateSelectNewDate,
	},
	StateConfirmReschedule: {
		Template: "confirm_reschedule",
		Options: []Option{
			{ID: "confirm", Label: "Confirm"},
			{ID: "change_time", Label: "Another time"},
			{ID: OptionHome, Label: "Main menu"},
		},
		Transitions: map[string]State{"confirm": StateRescheduled, "change_time": StateSelectNewTime},
		Fallback:    StateUnrecognized,
		Previous:    StateSelectNewTime,
	},
	StateRescheduled: {
		Template:    "rescheduled",
		Options:     mainMenuOptions,
		Transitions: mainMenuTransitions,
		Fallback:    StateUnrecognized,
	},
	StateConfirmCancel: {
		Template: "confirm_cancel",
		Options: []Option{
			{ID: "confirm_cancel", Label: "Yes, cancel it"},
			{ID: "keep", Label: "Keep it"},
		},
		Transitions: map[string]State{"confirm_cancel": StateCancelled, "keep": StateShowCurrentAppointment},
		Fallback:    StateUnrecognized,
		Previous:    StateShowCurrentAppointment,
	},
	StateCancelled: {
		Template:    "cancelled",
		Options:     mainMenuOptions,
		Transitions: mainMenuTransitions,
		Fallback:    StateUnrecognized,
	},
	StateFAQMenu: {
		Template:    "faq_menu",
		source:      optionsFAQ,
		Transitions: map[string]State{PrefixFAQ: StateFAQAnswer},
		Fallback:    StateUnrecognized,
		Previous:    StateMainMenu,
	},
	StateFAQAnswer: {
		Template: "faq_answer",
		Options: []Option{
			{ID: "more_questions", Label: "Other questions"},
			{ID: OptionHome, Label: "Main menu"},
		},
		Transitions: withMenu(map[string]State{"more_questions": StateFAQMenu}),
		Fallback:    StateUnrecognized,
		Previous:    StateFAQMenu,
	},
	StatePriceTable: {
		Template:    "price_table",
		Options:     []Option{{ID: "schedule", Label: "Book an appointment"}, backToMenu[0]},
		Transitions: withMenu(nil),
		Fallback:    StateUnrecognized,
		Previous:    StateMainMenu,
	},
	StateHumanHandoff: {
		Template: "human_handoff",
		Options:  backToMenu,
		Fallback: StateHumanHandoff,
		Previous: StateMainMenu,
		Quiet:    true,
	},
}

// Definition returns the state's definition.
func Definition(s State) (StateDef, bool) {
	def, ok := states[s]
	return def, ok
}

// next looks up an identifier in the transition map, exact match first,
// then by prefix.
func (d StateDef) next(id string) (State, bool) {
	if st, ok := d.Transitions[id]; ok {
		return st, true
	}
	for key, st := range d.Transitions {
		if strings.HasSuffix(key, "_") && strings.HasPrefix(id, key) {
			return st, true
		}
	}
	return "", false
}
