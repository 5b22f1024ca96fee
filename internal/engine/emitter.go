package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

// audience selects who a notification is routed to.
type audience int

const (
	audienceAdmin audience = iota
	audienceContractor
)

type route struct {
	Type     model.NotificationType
	Audience audience
}

// notificationRoutes is the static transition-to-notification mapping. A
// transition kind absent from this table is a state change that produces no
// notification. NotifyContractStatusChange has no engine-side trigger: the
// host's contract workflow emits it through the store directly.
var notificationRoutes = map[TransitionKind]route{
	TransitionRiskLevelChanged:    {model.NotifyClassificationRiskChange, audienceAdmin},
	TransitionDocumentCreated:     {model.NotifyDocumentUploaded, audienceAdmin},
	TransitionDocumentRolledOver:  {model.NotifyDocumentUploaded, audienceAdmin},
	TransitionDocumentExpiring:    {model.NotifyDocumentExpiring, audienceContractor},
	TransitionDocumentExpired:     {model.NotifyDocumentExpired, audienceContractor},
	TransitionDocumentMissing:     {model.NotifyDocumentMissing, audienceContractor},
	TransitionOnboardingFinished:  {model.NotifyOnboardingCompleted, audienceAdmin},
	TransitionOffboardingStarted:  {model.NotifyOffboardingInitiated, audienceAdmin},
	TransitionOffboardingAssigned: {model.NotifyOffboardingActionRequired, audienceContractor},
	TransitionOffboardingFinished: {model.NotifyOffboardingCompleted, audienceAdmin},
}

// seenLimit bounds the emitter's in-process dedup set in long-running
// processes. The notifications table's unique constraint is the durable
// guard, so clearing the set only costs the store a few conflicting inserts
// that it drops anyway.
const seenLimit = 1 << 16

// Emitter turns transitions into notification events. It keeps an in-process
// seen set keyed on (type, contractor, caused_by) so a retried operation does
// not hand the same event to the store twice; the store's unique constraint
// backs the same guarantee across processes.
type Emitter struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	limit int
	now   func() time.Time
}

func NewEmitter() *Emitter {
	return &Emitter{
		seen:  make(map[string]struct{}),
		limit: seenLimit,
		now:   time.Now,
	}
}

// Emit builds the notification event for kind, or nil when the kind has no
// route or the (type, contractor, causedBy) tuple was already emitted.
func (e *Emitter) Emit(kind TransitionKind, c *model.Contractor, causedBy string, payload map[string]any) *model.NotificationEvent {
	r, ok := notificationRoutes[kind]
	if !ok {
		return nil
	}

	key := string(r.Type) + "|" + c.ID + "|" + causedBy
	e.mu.Lock()
	if _, dup := e.seen[key]; dup {
		e.mu.Unlock()
		return nil
	}
	if len(e.seen) >= e.limit {
		e.seen = make(map[string]struct{})
	}
	e.seen[key] = struct{}{}
	e.mu.Unlock()

	return &model.NotificationEvent{
		ID:           uuid.NewString(),
		ContractorID: c.ID,
		UserID:       recipientFor(r.Audience, c),
		Type:         r.Type,
		Payload:      payload,
		CausedBy:     causedBy,
		CreatedAt:    e.now().UTC(),
	}
}

// Forget clears the seen marks for events whose persistence failed, so the
// retried operation can emit them again.
func (e *Emitter) Forget(events []model.NotificationEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range events {
		delete(e.seen, string(ev.Type)+"|"+ev.ContractorID+"|"+ev.CausedBy)
	}
}

// recipientFor resolves the routed user. Admin-facing events go to the
// account owner; contractor-facing events to the contractor's own user.
// Either way a missing mapping falls back so no event is dropped for want of
// routing data.
func recipientFor(a audience, c *model.Contractor) string {
	switch a {
	case audienceContractor:
		if c.UserID != "" {
			return c.UserID
		}
	default:
		if c.AccountOwnerID != "" {
			return c.AccountOwnerID
		}
		if c.UserID != "" {
			return c.UserID
		}
	}
	return c.ID
}
