package permission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/console/internal/domain/permission"
)

func TestResourcePermissions_Grant(t *testing.T) {
	tests := []struct {
		action   permission.Action
		expected permission.ResourcePermissions
	}{
		{permission.ActionCreate, permission.ResourcePermissions{CanCreate: true}},
		{permission.ActionView, permission.ResourcePermissions{CanRead: true}},
		{permission.ActionUpdate, permission.ResourcePermissions{CanUpdate: true}},
		{permission.ActionDelete, permission.ResourcePermissions{CanDelete: true}},
		{permission.Action("approve"), permission.ResourcePermissions{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			var p permission.ResourcePermissions
			p.Grant(tt.action)
			assert.Equal(t, tt.expected, p)
			assert.Equal(t, tt.expected != permission.ResourcePermissions{}, p.Allows(tt.action))
		})
	}
}

func TestParseActions(t *testing.T) {
	actions, err := permission.ParseActions("view, UPDATE")
	require.NoError(t, err)
	assert.Equal(t, []permission.Action{permission.ActionView, permission.ActionUpdate}, actions)

	actions, err = permission.ParseActions("")
	require.NoError(t, err)
	assert.Nil(t, actions)

	_, err = permission.ParseActions("view,approve")
	require.Error(t, err)
}

func TestUser_Subjects(t *testing.T) {
	u := permission.User{ID: "42", Groups: []string{"ops", "dev"}}

	assert.Equal(t, "user:42", u.Subject())
	assert.Equal(t, []string{"user:42", "group:ops", "group:dev"}, u.Subjects())
	assert.Equal(t, []string{"user:7"}, permission.User{ID: "7"}.Subjects())
}
