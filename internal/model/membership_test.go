package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrgRole(t *testing.T) {
	for _, s := range []string{"owner", "admin", "member", "viewer"} {
		r, err := ParseOrgRole(s)
		require.NoError(t, err)
		assert.Equal(t, OrgRole(s), r)
	}

	_, err := ParseOrgRole("Owner")
	assert.Error(t, err)
	_, err = ParseOrgRole("")
	assert.Error(t, err)
}

func TestOrgRoleAtLeast(t *testing.T) {
	ordered := []OrgRole{OrgRoleViewer, OrgRoleMember, OrgRoleAdmin, OrgRoleOwner}
	for i, r := range ordered {
		for j, min := range ordered {
			assert.Equal(t, i >= j, r.AtLeast(min), "%s at least %s", r, min)
		}
	}

	assert.False(t, OrgRole("root").AtLeast(OrgRoleViewer))
}

func TestMessageCloneDoesNotShareSections(t *testing.T) {
	m := Message{Sections: []Section{{Name: "Summary", Content: "a"}}}
	c := m.Clone()
	c.Sections[0].Content = "b"
	assert.Equal(t, "a", m.Sections[0].Content)

	var empty Message
	assert.Nil(t, empty.Clone().Sections)
}
