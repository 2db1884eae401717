package validator

import (
	"fmt"

	"github.com/aks129/fhirspective/pkg/models"
)

// Framework supplies the rule set applied to each resource type.
type Framework interface {
	Name() string
	Rules(resourceType string) RuleSet
}

// New returns the named validation framework.
func New(name string) (Framework, error) {
	switch name {
	case models.FrameworkBasic:
		return &basicFramework{}, nil
	case models.FrameworkUSCore:
		return &uscoreFramework{}, nil
	default:
		return nil, fmt.Errorf("unknown validation framework: %s", name)
	}
}

// basicFramework checks base FHIR R4 expectations.
type basicFramework struct{}

func (f *basicFramework) Name() string { return models.FrameworkBasic }

func (f *basicFramework) Rules(resourceType string) RuleSet {
	if rs, ok := basicRules[resourceType]; ok {
		return rs
	}
	return baseRules
}

// uscoreFramework layers US Core must-support requirements on the basic rules.
type uscoreFramework struct{}

func (f *uscoreFramework) Name() string { return models.FrameworkUSCore }

func (f *uscoreFramework) Rules(resourceType string) RuleSet {
	base := (&basicFramework{}).Rules(resourceType)
	if extra, ok := uscoreExtras[resourceType]; ok {
		return base.merge(extra)
	}
	return base
}
