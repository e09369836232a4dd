package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/pkg/errs"
)

func TestImplicitUserRoles(t *testing.T) {
	tests := []struct {
		role     Role
		expected []Role
	}{
		{Monitor, nil},
		{Operator, []Role{Monitor}},
		{Auditor, []Role{Monitor}},
		{Maintainer, []Role{Operator, Monitor}},
		{Deployer, []Role{Maintainer, Operator, Monitor}},
		{Administrator, []Role{Maintainer, Operator, Monitor}},
		{SuperUser, []Role{Auditor, Administrator, Deployer, Maintainer, Operator, Monitor}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got, err := ImplicitUserRoles(tt.role)
			require.NoError(t, err)
			assert.True(t, got.Equal(NewSet(tt.expected...)),
				"expected %v, got %v", tt.expected, got.Sorted())
		})
	}
}

func TestImplicitPermittedRoles(t *testing.T) {
	tests := []struct {
		role     Role
		expected []Role
	}{
		{SuperUser, nil},
		{Deployer, []Role{SuperUser}},
		{Administrator, []Role{SuperUser}},
		{Auditor, []Role{SuperUser}},
		{Maintainer, []Role{Deployer, Administrator, SuperUser}},
		{Operator, []Role{Maintainer, Deployer, Administrator, SuperUser}},
		{Monitor, []Role{Operator, Auditor, Maintainer, Deployer, Administrator, SuperUser}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got, err := ImplicitPermittedRoles(tt.role)
			require.NoError(t, err)
			assert.True(t, got.Equal(NewSet(tt.expected...)),
				"expected %v, got %v", tt.expected, got.Sorted())
		})
	}
}

// The two closures are duals over the same dominance relation: S is implied
// by R exactly when R is permitted wherever S is.
func TestClosuresAreDuals(t *testing.T) {
	for _, r := range All() {
		down, err := ImplicitUserRoles(r)
		require.NoError(t, err)
		for _, s := range All() {
			up, err := ImplicitPermittedRoles(s)
			require.NoError(t, err)
			assert.Equal(t, down.Contains(s), up.Contains(r),
				"duality violated for (%s, %s)", r, s)
		}
	}
}

func TestClosureCardinalities(t *testing.T) {
	down, err := ImplicitUserRoles(SuperUser)
	require.NoError(t, err)
	assert.Len(t, down, 6)

	down, err = ImplicitUserRoles(Monitor)
	require.NoError(t, err)
	assert.Empty(t, down)

	up, err := ImplicitPermittedRoles(Monitor)
	require.NoError(t, err)
	assert.Len(t, up, 6)

	up, err = ImplicitPermittedRoles(SuperUser)
	require.NoError(t, err)
	assert.Empty(t, up)
}

func TestUnknownRole(t *testing.T) {
	_, err := ImplicitUserRoles("Wizard")
	require.Error(t, err)
	assert.Equal(t, errs.KindInternal, errs.KindOf(err))

	_, err = ImplicitPermittedRoles("")
	require.Error(t, err)

	_, err = Parse("SuperDuperUser")
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	for _, r := range All() {
		got, err := Parse(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestSetOperations(t *testing.T) {
	a := NewSet(Monitor, Operator, Maintainer)
	b := NewSet(Maintainer, Deployer)

	assert.True(t, a.Intersects(b))
	assert.True(t, a.Intersect(b).Equal(NewSet(Maintainer)))
	assert.False(t, a.Intersects(NewSet(SuperUser)))

	c := a.Clone()
	c.Add(SuperUser)
	assert.False(t, a.Contains(SuperUser), "clone must not share storage")
	assert.Equal(t, []Role{Maintainer, Monitor, Operator}, a.Sorted())
}
