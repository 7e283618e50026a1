/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exchange

import (
	"errors"
	"fmt"
)

var (
	ErrSelfGift          = errors.New("participant cannot give to themself")
	ErrAlreadyGiving     = errors.New("participant is already giving to someone")
	ErrAlreadyReceiving  = errors.New("recipient is already receiving from someone")
	ErrReciprocalReceive = errors.New("participant cannot give to the person giving to them")
	ErrExcluded          = errors.New("participant excludes recipient")
	ErrAlreadyDrawn      = errors.New("recipient has already been drawn")

	ErrAssignmentExhausted = errors.New("could not compute an assignment")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrEmptyName           = errors.New("participant name must not be empty")
	ErrDuplicateName       = errors.New("participant name already in use")
)

// ViolationKind identifies which giving constraint was broken.
type ViolationKind int

const (
	SelfGift ViolationKind = iota + 1
	AlreadyGiving
	AlreadyReceiving
	ReciprocalReceive
	Excluded
	AlreadyDrawn
)

func (k ViolationKind) String() string {
	switch k {
	case SelfGift:
		return "self_gift"
	case AlreadyGiving:
		return "already_giving"
	case AlreadyReceiving:
		return "already_receiving"
	case ReciprocalReceive:
		return "reciprocal_receive"
	case Excluded:
		return "excluded"
	case AlreadyDrawn:
		return "already_drawn"
	}
	return fmt.Sprintf("violation(%d)", int(k))
}

func (k ViolationKind) sentinel() error {
	switch k {
	case SelfGift:
		return ErrSelfGift
	case AlreadyGiving:
		return ErrAlreadyGiving
	case AlreadyReceiving:
		return ErrAlreadyReceiving
	case ReciprocalReceive:
		return ErrReciprocalReceive
	case Excluded:
		return ErrExcluded
	case AlreadyDrawn:
		return ErrAlreadyDrawn
	}
	return nil
}

// ConstraintViolation is returned by CanGiveTo. It unwraps to the sentinel
// matching its Kind, so errors.Is(err, ErrExcluded) works as expected.
type ConstraintViolation struct {
	Kind      ViolationKind
	Giver     string
	Recipient string
}

func (v *ConstraintViolation) Error() string {
	return fmt.Sprintf("%q cannot give to %q: %v", v.Giver, v.Recipient, v.Kind.sentinel())
}

func (v *ConstraintViolation) Unwrap() error {
	return v.Kind.sentinel()
}
