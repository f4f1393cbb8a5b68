package domain

type (
	// OfferStatus is the state of an offer unit in the dispatch state machine.
	OfferStatus string
	// UnitType tells a single task from a multi-stop route.
	UnitType string
	// Action is a candidate response to an offer.
	Action string
	// ServiceType is the kind of work a candidate can do.
	ServiceType string
)

// List of possible offer statuses
const (
	StatusNone                  OfferStatus = "none"
	StatusSent                  OfferStatus = "sent"
	StatusPendingReconfirmation OfferStatus = "pending_reconfirmation"
	StatusAccepted              OfferStatus = "accepted"
	StatusDeclined              OfferStatus = "declined"
	StatusExpired               OfferStatus = "expired"
	StatusCancelled             OfferStatus = "cancelled"
	StatusAdminEscalated        OfferStatus = "admin_escalated"
)

// List of unit types
const (
	UnitTask  UnitType = "task"
	UnitRoute UnitType = "route"
)

// List of candidate actions
const (
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
)

// List of service types
const (
	ServiceDelivery ServiceType = "delivery"
	ServiceMoving   ServiceType = "moving"
)

var allowedStatuses = [...]OfferStatus{
	StatusNone, StatusSent, StatusPendingReconfirmation, StatusAccepted,
	StatusDeclined, StatusExpired, StatusCancelled, StatusAdminEscalated,
}

// OutstandingStatuses are the statuses in which a candidate holds a live offer.
var OutstandingStatuses = []OfferStatus{StatusSent, StatusPendingReconfirmation}

// Valid checks if the OfferStatus is valid
func (s OfferStatus) Valid() bool {
	for _, v := range allowedStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Outstanding reports whether a live offer is waiting for an answer.
func (s OfferStatus) Outstanding() bool {
	return s == StatusSent || s == StatusPendingReconfirmation
}

// Terminal reports whether no component moves the unit on its own anymore.
func (s OfferStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusCancelled || s == StatusAdminEscalated
}

// Valid checks if the UnitType is valid
func (t UnitType) Valid() bool {
	return t == UnitTask || t == UnitRoute
}

// Valid checks if the Action is valid
func (a Action) Valid() bool {
	return a == ActionAccept || a == ActionDecline
}

// Valid checks if the ServiceType is valid
func (s ServiceType) Valid() bool {
	return s == ServiceDelivery || s == ServiceMoving
}
