package policymodel

import (
	"fmt"
	"strings"

	"github.com/cedar-policy/cedar-go"
)

// LocalEvaluator answers authorization questions offline with the same
// principal, action and resource shapes the policy store sees.
type LocalEvaluator struct {
	namespace  string
	userPoolID string
	policies   *cedar.PolicySet
}

// NewLocalEvaluator parses policies into a single policy set.
func NewLocalEvaluator(namespace, userPoolID string, policies []Policy) (*LocalEvaluator, error) {
	var doc strings.Builder
	for _, p := range policies {
		doc.WriteString(p.Statement)
		doc.WriteString("\n")
	}
	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", []byte(doc.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}
	return &LocalEvaluator{namespace: namespace, userPoolID: userPoolID, policies: ps}, nil
}

// Decision is the outcome of a local evaluation.
type Decision struct {
	// Value is "ALLOW" or "DENY", matching the decision service's enum.
	Value     string
	PolicyIDs []string
}

// Allowed reports whether Value is ALLOW.
func (d Decision) Allowed() bool { return d.Value == "ALLOW" }

// Authorize evaluates actionID for a user who belongs to groups. Group names
// are qualified with the user pool id the way the identity source does it.
func (e *LocalEvaluator) Authorize(userSub string, groups []string, actionID string) Decision {
	userUID := cedar.NewEntityUID(e.entityType(UserType), cedar.String(UserEntityID(e.userPoolID, userSub)))
	groupUIDs := make([]cedar.EntityUID, 0, len(groups))
	entities := cedar.EntityMap{}
	for _, g := range groups {
		uid := cedar.NewEntityUID(e.entityType(UserGroupType), cedar.String(GroupEntityID(e.userPoolID, g)))
		groupUIDs = append(groupUIDs, uid)
		entities[uid] = cedar.Entity{UID: uid, Parents: cedar.NewEntityUIDSet(), Attributes: cedar.NewRecord(cedar.RecordMap{})}
	}
	entities[userUID] = cedar.Entity{
		UID:        userUID,
		Parents:    cedar.NewEntityUIDSet(groupUIDs...),
		Attributes: cedar.NewRecord(cedar.RecordMap{}),
	}
	appUID := cedar.NewEntityUID(e.entityType(ApplicationType), cedar.String(e.namespace))
	entities[appUID] = cedar.Entity{UID: appUID, Parents: cedar.NewEntityUIDSet(), Attributes: cedar.NewRecord(cedar.RecordMap{})}

	decision, diag := cedar.Authorize(e.policies, entities, cedar.Request{
		Principal: userUID,
		Action:    cedar.NewEntityUID(e.entityType(ActionType), cedar.String(actionID)),
		Resource:  appUID,
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	})
	out := Decision{Value: "DENY"}
	if decision == cedar.Allow {
		out.Value = "ALLOW"
	}
	for _, r := range diag.Reasons {
		out.PolicyIDs = append(out.PolicyIDs, string(r.PolicyID))
	}
	return out
}

func (e *LocalEvaluator) entityType(name string) cedar.EntityType {
	return cedar.EntityType(e.namespace + "::" + name)
}
