package policymodel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	vpapiTypes "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions/types"
	"gopkg.in/yaml.v3"

	awserrors "github.com/avpiotdemo/authorizer/internal/awssdk/errors"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

// CanaryCase is one expected decision. User and Groups are unqualified;
// the pool id is added when the case is evaluated.
type CanaryCase struct {
	User   string   `yaml:"user"`
	Groups []string `yaml:"groups"`
	Action string   `yaml:"action"`
	Expect string   `yaml:"expect"`
}

type canaryDoc struct {
	Cases []CanaryCase `yaml:"cases"`
}

// LoadCanaries returns the embedded base cases followed by the cases in
// consumerPath, when given.
func LoadCanaries(consumerPath string) ([]CanaryCase, error) {
	b, err := assets.ReadFile("assets/canaries/base.yaml")
	if err != nil {
		return nil, err
	}
	cases, err := readCanaryDoc(b, "base.yaml")
	if err != nil {
		return nil, err
	}
	if consumerPath == "" {
		return cases, nil
	}
	b, err = os.ReadFile(consumerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read canary file %s: %w", consumerPath, err)
	}
	extra, err := readCanaryDoc(b, consumerPath)
	if err != nil {
		return nil, err
	}
	return append(cases, extra...), nil
}

func readCanaryDoc(b []byte, src string) ([]CanaryCase, error) {
	var doc canaryDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid canary YAML %s: %w", src, err)
	}
	for i, c := range doc.Cases {
		if c.User == "" || c.Action == "" {
			return nil, fmt.Errorf("canary %s #%d: user and action are required", src, i+1)
		}
		if !strings.EqualFold(c.Expect, "ALLOW") && !strings.EqualFold(c.Expect, "DENY") {
			return nil, fmt.Errorf("canary %s #%d: expect must be ALLOW or DENY, got %q", src, i+1, c.Expect)
		}
	}
	return doc.Cases, nil
}

// Decider returns the decision ("ALLOW" or "DENY") for one case.
type Decider func(ctx context.Context, c CanaryCase) (string, error)

// LocalDecider evaluates cases with e.
func LocalDecider(e *LocalEvaluator) Decider {
	return func(_ context.Context, c CanaryCase) (string, error) {
		return e.Authorize(c.User, c.Groups, c.Action).Value, nil
	}
}

// AuthorizationClient is the subset of the Verified Permissions client used by remote canaries.
type AuthorizationClient interface {
	IsAuthorized(ctx context.Context, in *vpapi.IsAuthorizedInput, optFns ...func(*vpapi.Options)) (*vpapi.IsAuthorizedOutput, error)
}

// RemoteDecider evaluates cases against the policy store. Group membership
// is supplied as entities since no token is involved.
func RemoteDecider(client AuthorizationClient, policyStoreID, namespace, userPoolID string) Decider {
	typ := func(name string) *string { return aws.String(namespace + "::" + name) }
	return func(ctx context.Context, c CanaryCase) (string, error) {
		user := vpapiTypes.EntityIdentifier{EntityType: typ(UserType), EntityId: aws.String(UserEntityID(userPoolID, c.User))}
		items := make([]vpapiTypes.EntityItem, 0, len(c.Groups)+1)
		parents := make([]vpapiTypes.EntityIdentifier, 0, len(c.Groups))
		for _, g := range c.Groups {
			gid := vpapiTypes.EntityIdentifier{EntityType: typ(UserGroupType), EntityId: aws.String(GroupEntityID(userPoolID, g))}
			parents = append(parents, gid)
			items = append(items, vpapiTypes.EntityItem{Identifier: &gid})
		}
		items = append(items, vpapiTypes.EntityItem{Identifier: &user, Parents: parents})

		out, err := client.IsAuthorized(ctx, &vpapi.IsAuthorizedInput{
			PolicyStoreId: aws.String(policyStoreID),
			Principal:     &user,
			Action:        &vpapiTypes.ActionIdentifier{ActionType: typ(ActionType), ActionId: aws.String(c.Action)},
			Resource:      &vpapiTypes.EntityIdentifier{EntityType: typ(ApplicationType), EntityId: aws.String(namespace)},
			Entities:      &vpapiTypes.EntitiesDefinitionMemberEntityList{Value: items},
		})
		if err != nil {
			return "", awserrors.Classify(err)
		}
		return string(out.Decision), nil
	}
}

// RunCanaries evaluates every case and returns all mismatches joined.
func RunCanaries(ctx context.Context, cases []CanaryCase, decide Decider, log logging.Logger) error {
	log = logging.OrNop(log)
	var errs []error
	for i, c := range cases {
		got, err := decide(ctx, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("canary #%d failed to execute: %w", i+1, err))
			continue
		}
		if !strings.EqualFold(got, c.Expect) {
			errs = append(errs, fmt.Errorf("canary #%d unexpected decision: got %s, want %s (user=%s groups=%v action=%s)",
				i+1, got, c.Expect, c.User, c.Groups, c.Action))
			continue
		}
		log.Debug("policymodel.canary.pass", logging.Fields{"case": i + 1, "action": c.Action, "decision": got})
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Info("policymodel.canaries.passed", logging.Fields{"count": len(cases)})
	return nil
}
