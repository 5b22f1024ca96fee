package engine

import (
	"github.com/rotisserie/eris"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

// TransitionKind names the state change a fact caused, and keys the
// notification mapping table.
type TransitionKind string

const (
	TransitionNone                TransitionKind = ""
	TransitionItemCompleted       TransitionKind = "item_completed"
	TransitionItemSkipped         TransitionKind = "item_skipped"
	TransitionOnboardingFinished  TransitionKind = "onboarding_finished"
	TransitionOffboardingStarted  TransitionKind = "offboarding_started"
	TransitionOffboardingAssigned TransitionKind = "offboarding_tasks_assigned"
	TransitionOffboardingFinished TransitionKind = "offboarding_finished"
	TransitionDocumentCreated     TransitionKind = "document_created"
	TransitionDocumentRolledOver  TransitionKind = "document_rolled_over"
	TransitionDocumentExpiring    TransitionKind = "document_expiring"
	TransitionDocumentExpired     TransitionKind = "document_expired"
	TransitionDocumentMissing     TransitionKind = "document_missing"
	TransitionRiskLevelChanged    TransitionKind = "risk_level_changed"
	TransitionRiskRescored        TransitionKind = "risk_rescored"
)

// Transition describes the outcome of evaluating a fact against current
// state. Occurred=false means the fact was a duplicate or otherwise changed
// nothing notification-worthy.
type Transition struct {
	Occurred  bool
	Kind      TransitionKind
	From      model.ItemStatus
	To        model.ItemStatus
	PrevLevel model.RiskLevel
	NewLevel  model.RiskLevel
}

// EvaluateItem applies a step fact to an item's current state. prev is nil
// when the contractor has no item of this type yet; the implied prior state
// is pending. Re-applying the fact that produced the current terminal state
// reports Occurred=false. A fact targeting a different terminal state fails
// with ErrInvalidTransition.
func EvaluateItem(prev *model.LifecycleItem, fact model.Fact) (Transition, error) {
	var target model.ItemStatus
	var kind TransitionKind
	switch fact.Kind {
	case model.FactStepCompleted:
		target, kind = model.StatusCompleted, TransitionItemCompleted
	case model.FactStepSkipped:
		target, kind = model.StatusSkipped, TransitionItemSkipped
	default:
		return Transition{}, eris.Errorf("engine: fact %q is not a step fact", fact.Kind)
	}

	from := model.StatusPending
	if prev != nil {
		from = prev.Status
	}

	if from == target {
		return Transition{Occurred: false, Kind: TransitionNone, From: from, To: from}, nil
	}
	if from.Terminal() {
		return Transition{}, eris.Wrapf(ErrInvalidTransition,
			"engine: %s %q is already %s", fact.ItemKind, fact.ItemType, from)
	}

	return Transition{Occurred: true, Kind: kind, From: from, To: target}, nil
}

// EvaluateAssessment compares a freshly computed assessment against the
// prior current one. History is always appended; the transition only
// "occurs" when the level changes. The first assessment for a contractor is
// a rescoring, not a level change.
func EvaluateAssessment(prev, next *model.RiskAssessment) Transition {
	tr := Transition{Kind: TransitionRiskRescored, NewLevel: next.OverallLevel}
	if prev == nil {
		return tr
	}
	tr.PrevLevel = prev.OverallLevel
	if prev.OverallLevel != next.OverallLevel {
		tr.Occurred = true
		tr.Kind = TransitionRiskLevelChanged
	}
	return tr
}

// EvaluateDocument classifies an upload against the current record for the
// document type: first upload creates, later uploads roll the version over.
func EvaluateDocument(prev *model.DocumentRecord) Transition {
	if prev == nil {
		return Transition{Occurred: true, Kind: TransitionDocumentCreated}
	}
	return Transition{Occurred: true, Kind: TransitionDocumentRolledOver}
}
