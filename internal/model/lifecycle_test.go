package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusSkipped.Terminal())
}

func TestProgressFor(t *testing.T) {
	t.Parallel()

	items := []LifecycleItem{
		{Kind: KindOnboardingStep, ItemType: StepInviteAccepted, Status: StatusCompleted},
		{Kind: KindOnboardingStep, ItemType: StepTaxFormSubmitted, Status: StatusSkipped},
		{Kind: KindOnboardingStep, ItemType: StepContractSigned, Status: StatusPending},
		{Kind: KindOnboardingStep, ItemType: StepBankDetailsSubmitted, Status: StatusPending},
		// Items from another machine must not be counted.
		{Kind: KindOffboardingTask, ItemType: TaskRevokeAccess, Status: StatusPending},
	}

	p := ProgressFor(KindOnboardingStep, items)
	assert.Equal(t, 4, p.Total)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.Skipped)
	assert.ElementsMatch(t, []string{StepContractSigned, StepBankDetailsSubmitted}, p.Pending)
	assert.False(t, p.Finished())
}

func TestProgressFinished(t *testing.T) {
	t.Parallel()

	empty := ProgressFor(KindOffboardingTask, nil)
	assert.False(t, empty.Finished())

	done := ProgressFor(KindOffboardingTask, []LifecycleItem{
		{Kind: KindOffboardingTask, ItemType: TaskRevokeAccess, Status: StatusCompleted},
		{Kind: KindOffboardingTask, ItemType: TaskArchiveRecords, Status: StatusSkipped},
	})
	assert.True(t, done.Finished())
}
