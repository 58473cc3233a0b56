package sources

import (
	"strings"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
)

const (
	maxLocatorLength = 500
	maxNameLength    = 200
)

// Registration is a checked request to add or update a source.
type Registration struct {
	Kind    constants.SourceKind
	Locator string
	Name    string
}

// NewRegistration resolves kind aliases, trims input and validates it.
// Page locators must be absolute http(s) URLs. Name defaults to the locator.
func NewRegistration(kind, locator, name string) (Registration, error) {
	k, _ := constants.ParseSourceKind(strings.ToLower(strings.TrimSpace(kind)))
	reg := Registration{
		Kind:    k,
		Locator: strings.TrimSpace(locator),
		Name:    strings.TrimSpace(name),
	}
	if reg.Name == "" {
		reg.Name = reg.Locator
	}

	locatorRules := []common.ValidationRule{common.Required, common.MaxLength(maxLocatorLength)}
	if reg.Kind == constants.SourceKindPage {
		locatorRules = append(locatorRules, common.AbsoluteURL)
	}
	v := common.NewValidator().
		Field("kind", string(reg.Kind), common.OneOf(
			string(constants.SourceKindChat),
			string(constants.SourceKindPage),
			string(constants.SourceKindSocial),
		)).
		Field("locator", reg.Locator, locatorRules...).
		Field("name", reg.Name, common.Required, common.MaxLength(maxNameLength))
	if err := common.ValidateAndReturnError(v); err != nil {
		return Registration{}, err
	}
	return reg, nil
}
