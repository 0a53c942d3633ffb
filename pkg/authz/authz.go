package authz

import (
	"ticketing-commerce/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Objects and actions checked by the HTTP routes.
const (
	ObjOrgs        = "orgs"
	ObjReps        = "reps"
	ObjOrders      = "orders"
	ObjPoints      = "points"
	ObjRewards     = "rewards"
	ObjDiscounts   = "discounts"
	ObjLeaderboard = "leaderboard"
	ObjSettings    = "settings"

	ActRead  = "read"
	ActWrite = "write"
	ActClaim = "claim"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

var defaultPolicies = [][]string{
	{"admin", "*", "*"},
	{"orders:write", ObjOrders, ActWrite},
	{"orders:read", ObjOrders, ActRead},
	{"points:write", ObjPoints, ActWrite},
	{"points:read", ObjPoints, ActRead},
	{"rewards:read", ObjRewards, ActRead},
	{"rewards:claim", ObjRewards, ActClaim},
	{"rewards:write", ObjRewards, ActWrite},
	{"discounts:read", ObjDiscounts, ActRead},
	{"reps:write", ObjReps, ActWrite},
	{"reps:read", ObjReps, ActRead},
	{"discounts:write", ObjDiscounts, ActWrite},
	{"leaderboard:read", ObjLeaderboard, ActRead},
	{"settings:write", ObjSettings, ActWrite},
	{"settings:read", ObjSettings, ActRead},
	{"orgs:write", ObjOrgs, ActWrite},
	{"orgs:read", ObjOrgs, ActRead},
}

// Roles granted to a rep portal session.
var defaultGroupings = [][]string{
	{"rep", "points:read"},
	{"rep", "rewards:read"},
	{"rep", "rewards:claim"},
	{"rep", "leaderboard:read"},
	{"rep", "discounts:write"},
	{"rep", "discounts:read"},
	{"rep", "reps:read"},
}

var Module = fx.Module("authz", fx.Provide(New))

type Enforcer interface {
	// Allow reports whether any of the caller's permissions grants act on obj.
	Allow(permissions []string, obj, act string) (bool, error)
}

type casbinEnforcer struct {
	e *casbin.SyncedEnforcer
}

func New(cfg *config.Config) (Enforcer, error) {
	var (
		m   model.Model
		err error
	)
	if cfg != nil && cfg.AccessControl.Model != "" {
		m, err = model.NewModelFromFile(cfg.AccessControl.Model)
	} else {
		m, err = model.NewModelFromString(defaultModel)
	}
	if err != nil {
		return nil, err
	}

	if cfg != nil && cfg.AccessControl.Policy != "" {
		e, err := casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.AccessControl.Policy))
		if err != nil {
			return nil, err
		}
		return &casbinEnforcer{e: e}, nil
	}

	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, err
	}
	if _, err := e.AddGroupingPolicies(defaultGroupings); err != nil {
		return nil, err
	}

	zap.L().Debug("authz loaded default policies", zap.Int("policies", len(defaultPolicies)))
	return &casbinEnforcer{e: e}, nil
}

func (c *casbinEnforcer) Allow(permissions []string, obj, act string) (bool, error) {
	for _, p := range permissions {
		ok, err := c.e.Enforce(p, obj, act)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
