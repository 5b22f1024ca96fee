// Package policy defines the lifecycle policy: which onboarding steps,
// offboarding tasks, and document types a contractor is tracked against, plus
// the risk factor table. Policies load from YAML with built-in defaults.
package policy

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/crewbase/lifecycle-engine/internal/model"
	"github.com/crewbase/lifecycle-engine/internal/risk"
)

// Policy is the full lifecycle policy for an organization.
type Policy struct {
	OnboardingSteps     []string    `yaml:"onboarding_steps"`
	OffboardingTasks    []string    `yaml:"offboarding_tasks"`
	RequiredDocuments   []string    `yaml:"required_documents"`
	DocumentWarningDays int         `yaml:"document_warning_days"`
	Risk                risk.Config `yaml:"risk"`
}

// Default returns the built-in policy.
func Default() Policy {
	return Policy{
		OnboardingSteps: []string{
			model.StepInviteAccepted,
			model.StepTaxFormSubmitted,
			model.StepContractSigned,
			model.StepBankDetailsSubmitted,
		},
		OffboardingTasks: []string{
			model.TaskRevokeAccess,
			model.TaskRetrieveEquipment,
			model.TaskProcessFinalPayment,
			model.TaskArchiveRecords,
		},
		RequiredDocuments:   []string{"tax_form", "id_verification", "certificate_of_insurance"},
		DocumentWarningDays: 30,
		Risk:                risk.DefaultConfig(),
	}
}

// Load reads a policy from a YAML file. Sections missing from the file fall
// back to the defaults.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "policy: read %s", path)
	}

	// The YAML has a top-level "policy" key.
	var wrapper struct {
		Policy Policy `yaml:"policy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Policy{}, eris.Wrap(err, "policy: parse")
	}

	p := wrapper.Policy
	def := Default()
	if len(p.OnboardingSteps) == 0 {
		p.OnboardingSteps = def.OnboardingSteps
	}
	if len(p.OffboardingTasks) == 0 {
		p.OffboardingTasks = def.OffboardingTasks
	}
	if len(p.RequiredDocuments) == 0 {
		p.RequiredDocuments = def.RequiredDocuments
	}
	if p.DocumentWarningDays == 0 {
		p.DocumentWarningDays = def.DocumentWarningDays
	}
	if len(p.Risk.Factors) == 0 {
		p.Risk = def.Risk
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// WarningWindow returns the document expiry warning window as a duration.
func (p Policy) WarningWindow() time.Duration {
	return time.Duration(p.DocumentWarningDays) * 24 * time.Hour
}

// HasItemType reports whether itemType belongs to the machine identified by
// kind under this policy. Document slots are keyed by required document type.
func (p Policy) HasItemType(kind model.ItemKind, itemType string) bool {
	var set []string
	switch kind {
	case model.KindOnboardingStep:
		set = p.OnboardingSteps
	case model.KindOffboardingTask:
		set = p.OffboardingTasks
	case model.KindDocumentSlot:
		set = p.RequiredDocuments
	}
	for _, v := range set {
		if v == itemType {
			return true
		}
	}
	return false
}

// Validate checks the policy for duplicate or empty entries and a consistent
// risk table.
func (p Policy) Validate() error {
	var errs []string

	check := func(name string, values []string) {
		seen := make(map[string]bool, len(values))
		for _, v := range values {
			if v == "" {
				errs = append(errs, fmt.Sprintf("%s: empty entry", name))
				continue
			}
			if seen[v] {
				errs = append(errs, fmt.Sprintf("%s: duplicate entry %q", name, v))
			}
			seen[v] = true
		}
	}
	check("onboarding_steps", p.OnboardingSteps)
	check("offboarding_tasks", p.OffboardingTasks)
	check("required_documents", p.RequiredDocuments)

	if p.DocumentWarningDays < 0 {
		errs = append(errs, "document_warning_days must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("policy: validation failed: %s", strings.Join(errs, "; "))
	}
	return risk.ValidateConfig(p.Risk)
}
