package change

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/pagewatch/internal/state"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  string
		baseline *state.Record
		changed  bool
		firstRun bool
	}{
		{name: "no baseline", current: "h1", baseline: nil, changed: true, firstRun: true},
		{name: "same fingerprint", current: "h1", baseline: &state.Record{Fingerprint: "h1"}, changed: false},
		{name: "different fingerprint", current: "h2", baseline: &state.Record{Fingerprint: "h1"}, changed: true},
		{
			name:     "message hash ignored",
			current:  "h1",
			baseline: &state.Record{Fingerprint: "h1", MessageHash: "something else", AlertText: "old"},
			changed:  false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Detect(tt.current, tt.baseline)
			assert.Equal(t, tt.changed, d.Changed)
			assert.Equal(t, tt.firstRun, d.FirstRun())
			assert.Equal(t, tt.current, d.Current)
		})
	}
}
