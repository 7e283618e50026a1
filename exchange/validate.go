/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exchange

// CanGiveTo reports whether giver may be assigned recipient given the
// current state of both. Checks run in a fixed order and the first failure
// is returned as a *ConstraintViolation.
func CanGiveTo(giver, recipient Participant) error {
	violation := func(kind ViolationKind) error {
		return &ConstraintViolation{
			Kind:      kind,
			Giver:     giver.Name,
			Recipient: recipient.Name,
		}
	}

	switch {
	case giver.Name == recipient.Name:
		return violation(SelfGift)
	case giver.GivingTo != "":
		return violation(AlreadyGiving)
	case recipient.ReceivingFrom != "":
		return violation(AlreadyReceiving)
	case giver.ReceivingFrom == recipient.Name:
		return violation(ReciprocalReceive)
	case giver.Excludes(recipient.Name):
		return violation(Excluded)
	case recipient.Drawn:
		return violation(AlreadyDrawn)
	}

	return nil
}
