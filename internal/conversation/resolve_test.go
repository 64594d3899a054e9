package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	options := []Option{
		{ID: "service_legs", Label: "Laser legs"},
		{ID: "service_arms", Label: "Laser arms"},
		{ID: "service_peel", Label: "Chemical peel"},
	}

	tests := []struct {
		name string
		msg  InboundMessage
		want Intent
	}{
		{"explicit id wins", InboundMessage{OptionID: "service_peel", Text: "back"}, Intent{ID: "service_peel", Text: "back"}},
		{"explicit id not offered", InboundMessage{OptionID: "day_2026-10-19"}, Intent{ID: "day_2026-10-19"}},
		{"back shortcut", InboundMessage{Text: " Back "}, Intent{ID: OptionBack, Text: "Back"}},
		{"home shortcut", InboundMessage{Text: "inicio"}, Intent{ID: OptionHome, Text: "inicio"}},
		{"human shortcut", InboundMessage{Text: "ATENDENTE"}, Intent{ID: OptionHuman, Text: "ATENDENTE"}},
		{"position", InboundMessage{Text: "2"}, Intent{ID: "service_arms", Text: "2"}},
		{"position out of range", InboundMessage{Text: "4"}, Intent{Text: "4"}},
		{"unique substring", InboundMessage{Text: "LEGS"}, Intent{ID: "service_legs", Text: "LEGS"}},
		{"ambiguous substring", InboundMessage{Text: "laser"}, Intent{Text: "laser"}},
		{"no match", InboundMessage{Text: "botox"}, Intent{Text: "botox"}},
		{"empty", InboundMessage{Text: "   "}, Intent{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.msg, options))
		})
	}
}

func TestBackShortcutBeatsLocalOptions(t *testing.T) {
	options := []Option{{ID: "back_area", Label: "Back"}}
	assert.Equal(t, OptionBack, Resolve(InboundMessage{Text: "back"}, options).ID)
}

func TestScheduleMenuBackGoesToMainMenu(t *testing.T) {
	def, ok := Definition(StateScheduleMenu)
	assert.True(t, ok)
	assert.Equal(t, StateMainMenu, def.Previous)
}

func TestStateTableIsClosed(t *testing.T) {
	for name, def := range states {
		assert.NotEmpty(t, def.Template, name)
		_, ok := defaultTemplates[def.Template]
		assert.True(t, ok, "state %s template %s", name, def.Template)
		assert.NotEmpty(t, def.Fallback, name)
		for id, next := range def.Transitions {
			_, ok := states[next]
			assert.True(t, ok, "state %s option %s targets unknown %s", name, id, next)
		}
		if def.Previous != "" {
			_, ok := states[def.Previous]
			assert.True(t, ok, "state %s previous %s", name, def.Previous)
		}
	}
}

func TestApplyPrefixResetsAreasOnServiceChange(t *testing.T) {
	sess := &Session{SelectedServiceIDs: []string{"laser"}, SelectedAreaIDs: []string{"legs"}}
	applyPrefix(sess, "service_laser")
	assert.Equal(t, []string{"legs"}, sess.SelectedAreaIDs)
	applyPrefix(sess, "service_consult")
	assert.Nil(t, sess.SelectedAreaIDs)
}
