/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exchange

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Roster is the ordered set of participants for one exchange. Names are
// unique within a roster; every participant carries a stable ID assigned
// when it joins.
type Roster struct {
	participants []Participant
}

// NewRoster builds a roster from ps, in order. Participants without an ID
// are given one.
func NewRoster(ps ...Participant) (*Roster, error) {
	r := &Roster{participants: make([]Participant, 0, len(ps))}
	for _, p := range ps {
		if err := r.Add(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Roster) Len() int {
	return len(r.participants)
}

// Add appends p to the roster. Any assignment state on p is dropped.
func (r *Roster) Add(p Participant) error {
	p = p.Clone()
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return ErrEmptyName
	}
	if r.index(p.Name) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Reset()
	r.participants = append(r.participants, p)
	return nil
}

func (r *Roster) Remove(name string) error {
	i := r.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrParticipantNotFound, name)
	}
	r.participants = slices.Delete(r.participants, i, i+1)
	return nil
}

func (r *Roster) Find(name string) (Participant, error) {
	i := r.index(name)
	if i < 0 {
		return Participant{}, fmt.Errorf("%w: %q", ErrParticipantNotFound, name)
	}
	return r.participants[i].Clone(), nil
}

// SetExclusion adds (on) or removes (!on) excluded from the exclusion list of
// the participant called name. Both must be on the roster.
func (r *Roster) SetExclusion(name, excluded string, on bool) error {
	i := r.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrParticipantNotFound, name)
	}
	if r.index(excluded) < 0 {
		return fmt.Errorf("%w: %q", ErrParticipantNotFound, excluded)
	}
	if name == excluded {
		return ErrSelfGift
	}

	p := &r.participants[i]
	if on {
		if !p.Excludes(excluded) {
			p.Excluding = append(p.Excluding, excluded)
		}
		return nil
	}
	p.Excluding = lo.Without(p.Excluding, excluded)
	if len(p.Excluding) == 0 {
		p.Excluding = nil
	}
	return nil
}

func (r *Roster) Names() []string {
	return lo.Map(r.participants, func(p Participant, _ int) string {
		return p.Name
	})
}

// Participants returns a copy of the roster's participants in order.
func (r *Roster) Participants() []Participant {
	return lo.Map(r.participants, func(p Participant, _ int) Participant {
		return p.Clone()
	})
}

func (r *Roster) Clear() {
	r.participants = r.participants[:0]
}

func (r *Roster) Clone() *Roster {
	return &Roster{participants: r.Participants()}
}

func (r *Roster) index(name string) int {
	return slices.IndexFunc(r.participants, func(p Participant) bool {
		return p.Name == name
	})
}
