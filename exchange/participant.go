/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exchange

import (
	"slices"
)

// Participant is one person in an exchange. GivingTo and ReceivingFrom hold
// participant names and are empty until a draw assigns them.
type Participant struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	GivingTo      string   `json:"giving_to,omitempty"`
	ReceivingFrom string   `json:"receiving_from,omitempty"`
	Excluding     []string `json:"excluding,omitempty"`
	Drawn         bool     `json:"drawn,omitempty"`
}

// NewParticipant returns a participant with no ID and no assignment. An
// empty exclusion list is stored as nil.
func NewParticipant(name string, excluding ...string) Participant {
	p := Participant{Name: name}
	if len(excluding) > 0 {
		p.Excluding = slices.Clone(excluding)
	}
	return p
}

// Excludes reports whether p refuses to give to name.
func (p Participant) Excludes(name string) bool {
	return slices.Contains(p.Excluding, name)
}

// Reset discards any assignment state.
func (p *Participant) Reset() {
	p.GivingTo = ""
	p.ReceivingFrom = ""
	p.Drawn = false
}

func (p Participant) Clone() Participant {
	p.Excluding = slices.Clone(p.Excluding)
	return p
}
