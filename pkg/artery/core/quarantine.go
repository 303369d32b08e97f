package core

import "github.com/jabolina/go-artery/pkg/artery/types"

// QuarantineCheck is the inbound filter of spec §4.7: drop any envelope
// whose originating UID is in the association's quarantined set.
type QuarantineCheck struct {
	events *types.EventBus
}

func NewQuarantineCheck(events *types.EventBus) *QuarantineCheck {
	return &QuarantineCheck{events: events}
}

// Admit reports whether a frame from originUID should proceed. A
// rejection publishes a Dropped event.
func (q *QuarantineCheck) Admit(assoc *Association, originUID types.UID) bool {
	if assoc == nil {
		return true
	}
	if assoc.State().isQuarantined(originUID) {
		q.events.Publish(types.Dropped{Reason: "quarantined-origin"})
		return false
	}
	return true
}
