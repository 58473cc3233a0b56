package sources

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
)

func TestNewRegistration(t *testing.T) {
	reg, err := NewRegistration(" Chat ", " 120363@g.us ", "")
	require.NoError(t, err)
	require.Equal(t, constants.SourceKindChat, reg.Kind)
	require.Equal(t, "120363@g.us", reg.Locator)
	require.Equal(t, "120363@g.us", reg.Name)

	reg, err = NewRegistration("web_page", "https://example.com/castings", "Castings")
	require.NoError(t, err)
	require.Equal(t, constants.SourceKindPage, reg.Kind)

	tests := []struct {
		name, kind, locator, display, field string
	}{
		{"unknown kind", "fax", "x", "", "kind"},
		{"missing locator", "social", "  ", "", "locator"},
		{"relative page url", "page", "/castings", "", "locator"},
		{"non-http page url", "page", "ftp://example.com", "", "locator"},
		{"long name", "chat", "g1", strings.Repeat("n", maxNameLength+1), "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistration(tt.kind, tt.locator, tt.display)
			require.ErrorIs(t, err, common.ErrValidation)
			require.Contains(t, err.Error(), "'"+tt.field+"'")
		})
	}

	// only page locators have to be URLs
	_, err = NewRegistration("social", "@casting_ksa", "")
	require.NoError(t, err)
}
