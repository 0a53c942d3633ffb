package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPolicies(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	cases := []struct {
		name        string
		permissions []string
		obj, act    string
		want        bool
	}{
		{"admin wildcard", []string{"admin"}, ObjOrders, ActWrite, true},
		{"direct permission", []string{"orders:write"}, ObjOrders, ActWrite, true},
		{"read does not grant write", []string{"orders:read"}, ObjOrders, ActWrite, false},
		{"rep role claims rewards", []string{"rep"}, ObjRewards, ActClaim, true},
		{"rep role cannot edit catalog", []string{"rep"}, ObjRewards, ActWrite, false},
		{"rep role cannot refund", []string{"rep"}, ObjOrders, ActWrite, false},
		{"any of several", []string{"unknown", "points:write"}, ObjPoints, ActWrite, true},
		{"no permissions", nil, ObjPoints, ActRead, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := e.Allow(tc.permissions, tc.obj, tc.act)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
		})
	}
}
