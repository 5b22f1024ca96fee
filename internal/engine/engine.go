// Package engine applies contractor facts to stored lifecycle state,
// derives risk and document transitions, and emits notification events for
// the ones worth telling someone about.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crewbase/lifecycle-engine/internal/model"
	"github.com/crewbase/lifecycle-engine/internal/policy"
	"github.com/crewbase/lifecycle-engine/internal/risk"
	"github.com/crewbase/lifecycle-engine/internal/store"
)

// Engine is the coordination layer: it serializes work per contractor,
// evaluates facts against current state, persists the outcome, and emits
// notifications. All state lives in the store; the engine itself only holds
// the per-contractor locks and the emitter's dedup set.
type Engine struct {
	store   store.Store
	policy  policy.Policy
	emitter *Emitter
	locks   *keyedMutex
	now     func() time.Time
}

func New(s store.Store, pol policy.Policy) *Engine {
	return &Engine{
		store:   s,
		policy:  pol,
		emitter: NewEmitter(),
		locks:   newKeyedMutex(),
		now:     time.Now,
	}
}

// Result reports what a fact did. Exactly one of Item, Assessment, or
// Document is set, matching the fact kind. Notifications holds the events
// emitted for this fact, already persisted.
type Result struct {
	ContractorID  string                    `json:"contractor_id"`
	Transition    Transition                `json:"transition"`
	Item          *model.LifecycleItem      `json:"item,omitempty"`
	Assessment    *model.RiskAssessment     `json:"assessment,omitempty"`
	Document      *model.DocumentRecord     `json:"document,omitempty"`
	Notifications []model.NotificationEvent `json:"notifications,omitempty"`
}

// StatusReport is the derived view of one contractor: machine progress,
// document slot conditions, and the current risk assessment. Nothing in it
// is stored as-is.
type StatusReport struct {
	Contractor  model.Contractor      `json:"contractor"`
	Onboarding  model.Progress        `json:"onboarding"`
	Offboarding model.Progress        `json:"offboarding"`
	Documents   []DocumentStatus      `json:"documents"`
	Assessment  *model.RiskAssessment `json:"assessment,omitempty"`
}

// DocumentStatus pairs a required document type with its derived condition.
type DocumentStatus struct {
	DocumentType string                  `json:"document_type"`
	Condition    model.DocumentCondition `json:"condition"`
	Record       *model.DocumentRecord   `json:"record,omitempty"`
}

// RecordFact applies one fact to a contractor under that contractor's lock.
// A fact that changes nothing succeeds with Transition.Occurred=false; a
// fact that conflicts with a terminal state fails with ErrInvalidTransition
// and writes nothing.
func (e *Engine) RecordFact(ctx context.Context, contractorID string, fact model.Fact) (*Result, error) {
	release := e.locks.Lock(contractorID)
	defer release()

	c, err := e.store.GetContractor(ctx, contractorID)
	if err != nil {
		return nil, repoFail(err, "load contractor")
	}
	if c == nil {
		return nil, eris.Wrapf(ErrUnknownContractor, "engine: record fact for %q", contractorID)
	}

	var res *Result
	switch fact.Kind {
	case model.FactStepCompleted, model.FactStepSkipped:
		res, err = e.recordStep(ctx, c, fact)
	case model.FactDocumentUploaded:
		res, err = e.recordDocument(ctx, c, fact)
	case model.FactRiskFactorsUpdated:
		res, err = e.recordRisk(ctx, c, fact)
	default:
		return nil, eris.Errorf("engine: unsupported fact kind %q", fact.Kind)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("fact recorded",
		zap.String("contractor_id", contractorID),
		zap.String("fact_kind", string(fact.Kind)),
		zap.String("transition", string(res.Transition.Kind)),
		zap.Bool("occurred", res.Transition.Occurred),
		zap.Int("notifications", len(res.Notifications)))

	return res, nil
}

func (e *Engine) recordStep(ctx context.Context, c *model.Contractor, fact model.Fact) (*Result, error) {
	if fact.ItemKind != model.KindOnboardingStep && fact.ItemKind != model.KindOffboardingTask {
		return nil, eris.Errorf("engine: fact kind %q does not apply to %q items", fact.Kind, fact.ItemKind)
	}
	if !e.policy.HasItemType(fact.ItemKind, fact.ItemType) {
		return nil, eris.Wrapf(ErrUnknownItemType, "engine: %s %q", fact.ItemKind, fact.ItemType)
	}

	prev, err := e.store.GetLifecycleItem(ctx, c.ID, fact.ItemKind, fact.ItemType)
	if err != nil {
		return nil, repoFail(err, "load lifecycle item")
	}

	tr, err := EvaluateItem(prev, fact)
	if err != nil {
		return nil, err
	}

	res := &Result{ContractorID: c.ID, Transition: tr}
	if !tr.Occurred {
		res.Item = prev
		return res, nil
	}

	item := model.LifecycleItem{
		ContractorID: c.ID,
		Kind:         fact.ItemKind,
		ItemType:     fact.ItemType,
		Status:       tr.To,
	}
	if tr.To == model.StatusCompleted {
		now := e.now().UTC()
		item.CompletedAt = &now
	}

	// Project the new status over the stored items to see whether this
	// terminal item finishes the whole machine. The event then commits in
	// the same transaction as the item, so a failed write rolls both back
	// and a retry emits again.
	items, err := e.store.ListLifecycleItems(ctx, c.ID, fact.ItemKind)
	if err != nil {
		return nil, repoFail(err, "list lifecycle items")
	}
	replaced := false
	for i := range items {
		if items[i].ItemType == fact.ItemType {
			items[i].Status = tr.To
			replaced = true
		}
	}
	if !replaced {
		items = append(items, item)
	}

	var events []model.NotificationEvent
	progress := model.ProgressFor(fact.ItemKind, items)
	if progress.Finished() {
		var kind TransitionKind
		var causedBy string
		switch fact.ItemKind {
		case model.KindOnboardingStep:
			kind, causedBy = TransitionOnboardingFinished, "onboarding:"+c.ID
		case model.KindOffboardingTask:
			kind, causedBy = TransitionOffboardingFinished, "offboarding:"+c.ID
		}
		if ev := e.emitter.Emit(kind, c, causedBy, map[string]any{
			"completed": progress.Completed,
			"skipped":   progress.Skipped,
			"total":     progress.Total,
		}); ev != nil {
			events = append(events, *ev)
		}
	}

	stored, err := e.store.UpsertLifecycleItem(ctx, item, events)
	if err != nil {
		e.emitter.Forget(events)
		return nil, repoFail(err, "upsert lifecycle item")
	}
	res.Item = &item
	res.Notifications = stored

	return res, nil
}

func (e *Engine) recordDocument(ctx context.Context, c *model.Contractor, fact model.Fact) (*Result, error) {
	if !e.policy.HasItemType(model.KindDocumentSlot, fact.DocumentType) {
		return nil, eris.Wrapf(ErrUnknownItemType, "engine: document %q", fact.DocumentType)
	}

	prev, err := e.store.GetCurrentDocument(ctx, c.ID, fact.DocumentType)
	if err != nil {
		return nil, repoFail(err, "load current document")
	}

	tr := EvaluateDocument(prev)
	version := 1
	if prev != nil {
		version = prev.Version + 1
	}

	rec := &model.DocumentRecord{
		ID:           uuid.NewString(),
		ContractorID: c.ID,
		DocumentType: fact.DocumentType,
		IsCurrent:    true,
		Version:      version,
		ExpiresAt:    fact.ExpiresAt,
		SizeBytes:    fact.SizeBytes,
		MimeType:     fact.MimeType,
		UploadedAt:   e.now().UTC(),
	}
	// The upload satisfies the document slot in the onboarding machine. This
	// never un-completes or conflicts, so it bypasses transition evaluation.
	now := rec.UploadedAt
	slot := &model.LifecycleItem{
		ContractorID: c.ID,
		Kind:         model.KindDocumentSlot,
		ItemType:     fact.DocumentType,
		Status:       model.StatusCompleted,
		CompletedAt:  &now,
	}

	var events []model.NotificationEvent
	if ev := e.emitter.Emit(tr.Kind, c, rec.ID, map[string]any{
		"document_type": fact.DocumentType,
		"version":       version,
	}); ev != nil {
		events = append(events, *ev)
	}

	stored, err := e.store.RolloverDocument(ctx, rec, slot, events)
	if err != nil {
		e.emitter.Forget(events)
		return nil, repoFail(err, "rollover document")
	}

	return &Result{ContractorID: c.ID, Transition: tr, Document: rec, Notifications: stored}, nil
}

func (e *Engine) recordRisk(ctx context.Context, c *model.Contractor, fact model.Fact) (*Result, error) {
	next, err := risk.Score(e.policy.Risk, fact.Factors)
	if err != nil {
		return nil, err
	}

	prev, err := e.store.GetCurrentAssessment(ctx, c.ID)
	if err != nil {
		return nil, repoFail(err, "load current assessment")
	}

	next.ID = uuid.NewString()
	next.ContractorID = c.ID
	next.AssessedAt = e.now().UTC()
	next.IsCurrent = true

	tr := EvaluateAssessment(prev, next)
	var events []model.NotificationEvent
	if tr.Occurred {
		if ev := e.emitter.Emit(tr.Kind, c, next.ID, map[string]any{
			"previous_level": string(tr.PrevLevel),
			"new_level":      string(tr.NewLevel),
			"score":          next.OverallScore,
		}); ev != nil {
			events = append(events, *ev)
		}
	}

	stored, err := e.store.AppendAssessment(ctx, next, events)
	if err != nil {
		e.emitter.Forget(events)
		return nil, repoFail(err, "append assessment")
	}

	return &Result{ContractorID: c.ID, Transition: tr, Assessment: next, Notifications: stored}, nil
}

// Status assembles the derived view of a contractor.
func (e *Engine) Status(ctx context.Context, contractorID string) (*StatusReport, error) {
	c, err := e.store.GetContractor(ctx, contractorID)
	if err != nil {
		return nil, repoFail(err, "load contractor")
	}
	if c == nil {
		return nil, eris.Wrapf(ErrUnknownContractor, "engine: status for %q", contractorID)
	}

	rep := &StatusReport{Contractor: *c}

	onboarding, err := e.store.ListLifecycleItems(ctx, contractorID, model.KindOnboardingStep)
	if err != nil {
		return nil, repoFail(err, "list onboarding steps")
	}
	rep.Onboarding = model.ProgressFor(model.KindOnboardingStep, onboarding)

	offboarding, err := e.store.ListLifecycleItems(ctx, contractorID, model.KindOffboardingTask)
	if err != nil {
		return nil, repoFail(err, "list offboarding tasks")
	}
	rep.Offboarding = model.ProgressFor(model.KindOffboardingTask, offboarding)

	docs, err := e.store.ListCurrentDocuments(ctx, contractorID)
	if err != nil {
		return nil, repoFail(err, "list current documents")
	}
	byType := make(map[string]*model.DocumentRecord, len(docs))
	for i := range docs {
		byType[docs[i].DocumentType] = &docs[i]
	}
	now := e.now().UTC()
	warn := e.policy.WarningWindow()
	for _, docType := range e.policy.RequiredDocuments {
		rec := byType[docType]
		rep.Documents = append(rep.Documents, DocumentStatus{
			DocumentType: docType,
			Condition:    model.ConditionFor(rec, now, warn),
			Record:       rec,
		})
	}

	rep.Assessment, err = e.store.GetCurrentAssessment(ctx, contractorID)
	if err != nil {
		return nil, repoFail(err, "load current assessment")
	}

	return rep, nil
}

// StartOnboarding registers the contractor and seeds the onboarding steps
// and document slots from the policy. Safe to call again: existing items and
// their statuses are left untouched.
func (e *Engine) StartOnboarding(ctx context.Context, c model.Contractor) (int64, error) {
	release := e.locks.Lock(c.ID)
	defer release()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = e.now().UTC()
	}
	if err := e.store.UpsertContractor(ctx, c); err != nil {
		return 0, repoFail(err, "upsert contractor")
	}

	items := make([]model.LifecycleItem, 0, len(e.policy.OnboardingSteps)+len(e.policy.RequiredDocuments))
	for _, step := range e.policy.OnboardingSteps {
		items = append(items, model.LifecycleItem{
			ContractorID: c.ID,
			Kind:         model.KindOnboardingStep,
			ItemType:     step,
			Status:       model.StatusPending,
		})
	}
	for _, docType := range e.policy.RequiredDocuments {
		items = append(items, model.LifecycleItem{
			ContractorID: c.ID,
			Kind:         model.KindDocumentSlot,
			ItemType:     docType,
			Status:       model.StatusPending,
		})
	}

	n, _, err := e.store.SeedLifecycleItems(ctx, items, nil)
	if err != nil {
		return 0, repoFail(err, "seed onboarding items")
	}

	zap.L().Info("onboarding started",
		zap.String("contractor_id", c.ID),
		zap.Int64("items_seeded", n))
	return n, nil
}

// StartOffboarding seeds the offboarding checklist and emits the initiation
// notifications. Calling it again for a contractor already offboarding is a
// no-op: nothing is seeded and nothing is emitted.
func (e *Engine) StartOffboarding(ctx context.Context, contractorID string) (*Result, error) {
	release := e.locks.Lock(contractorID)
	defer release()

	c, err := e.store.GetContractor(ctx, contractorID)
	if err != nil {
		return nil, repoFail(err, "load contractor")
	}
	if c == nil {
		return nil, eris.Wrapf(ErrUnknownContractor, "engine: start offboarding for %q", contractorID)
	}

	items := make([]model.LifecycleItem, 0, len(e.policy.OffboardingTasks))
	for _, task := range e.policy.OffboardingTasks {
		items = append(items, model.LifecycleItem{
			ContractorID: contractorID,
			Kind:         model.KindOffboardingTask,
			ItemType:     task,
			Status:       model.StatusPending,
		})
	}

	// Emit before seeding: events land in the same transaction, and on a
	// repeat call the emitter (or, after a restart, the store's unique
	// constraint) drops them, so the caller never sees them twice.
	causedBy := "offboarding:" + contractorID
	payload := map[string]any{"tasks": len(items)}
	var events []model.NotificationEvent
	if ev := e.emitter.Emit(TransitionOffboardingStarted, c, causedBy, payload); ev != nil {
		events = append(events, *ev)
	}
	if ev := e.emitter.Emit(TransitionOffboardingAssigned, c, causedBy, payload); ev != nil {
		events = append(events, *ev)
	}

	n, stored, err := e.store.SeedLifecycleItems(ctx, items, events)
	if err != nil {
		e.emitter.Forget(events)
		return nil, repoFail(err, "seed offboarding tasks")
	}

	res := &Result{
		ContractorID:  contractorID,
		Transition:    Transition{Occurred: n > 0, Kind: TransitionOffboardingStarted},
		Notifications: stored,
	}

	zap.L().Info("offboarding started",
		zap.String("contractor_id", contractorID),
		zap.Int64("tasks_seeded", n))
	return res, nil
}

// SweepDocuments scans a contractor's document slots and emits expiring,
// expired, and missing notifications. Each underlying record version
// produces each warning at most once, so repeated sweeps are quiet until
// something changes.
func (e *Engine) SweepDocuments(ctx context.Context, contractorID string) (*Result, error) {
	release := e.locks.Lock(contractorID)
	defer release()

	c, err := e.store.GetContractor(ctx, contractorID)
	if err != nil {
		return nil, repoFail(err, "load contractor")
	}
	if c == nil {
		return nil, eris.Wrapf(ErrUnknownContractor, "engine: sweep documents for %q", contractorID)
	}

	now := e.now().UTC()
	warn := e.policy.WarningWindow()
	res := &Result{ContractorID: contractorID}

	for _, docType := range e.policy.RequiredDocuments {
		rec, err := e.store.GetCurrentDocument(ctx, contractorID, docType)
		if err != nil {
			return nil, repoFail(err, "load current document")
		}

		var kind TransitionKind
		var causedBy string
		payload := map[string]any{"document_type": docType}
		switch model.ConditionFor(rec, now, warn) {
		case model.DocumentExpiring:
			kind, causedBy = TransitionDocumentExpiring, rec.ID+":expiring"
			payload["expires_at"] = rec.ExpiresAt.UTC().Format(time.RFC3339)
		case model.DocumentExpired:
			kind, causedBy = TransitionDocumentExpired, rec.ID+":expired"
			payload["expired_at"] = rec.ExpiresAt.UTC().Format(time.RFC3339)
		case model.DocumentMissing:
			kind, causedBy = TransitionDocumentMissing, "missing:"+docType
		default:
			continue
		}

		if ev := e.emitter.Emit(kind, c, causedBy, payload); ev != nil {
			res.Notifications = append(res.Notifications, *ev)
		}
	}

	if err := e.persistNotifications(ctx, res); err != nil {
		return nil, err
	}

	zap.L().Info("document sweep finished",
		zap.String("contractor_id", contractorID),
		zap.Int("notifications", len(res.Notifications)))
	return res, nil
}

// persistNotifications stores the result's events and keeps only the ones
// the store accepted, so events a prior process already stored are never
// handed to the delivery sink again.
func (e *Engine) persistNotifications(ctx context.Context, res *Result) error {
	if len(res.Notifications) == 0 {
		return nil
	}
	stored, err := e.store.AppendNotifications(ctx, res.Notifications)
	if err != nil {
		e.emitter.Forget(res.Notifications)
		return repoFail(err, "append notifications")
	}
	if len(stored) < len(res.Notifications) {
		zap.L().Debug("duplicate notifications dropped by store",
			zap.String("contractor_id", res.ContractorID),
			zap.Int("stored", len(stored)),
			zap.Int("emitted", len(res.Notifications)))
	}
	res.Notifications = stored
	return nil
}
