// Package policymodel owns the Cedar model behind the authorizer: the
// schema, the group policies, offline evaluation and syncing them into a
// Verified Permissions policy store.
package policymodel

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	vpapiTypes "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions/types"

	"github.com/avpiotdemo/authorizer/internal/awssdk"
	awserrors "github.com/avpiotdemo/authorizer/internal/awssdk/errors"
	"github.com/avpiotdemo/authorizer/internal/utils"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

//go:embed assets
var assets embed.FS

// DefaultNamespace is the Cedar namespace of the shipped schema.
const DefaultNamespace = "AvpIotDemoApi"

// Entity type names within the namespace.
const (
	UserType        = "User"
	UserGroupType   = "UserGroup"
	ApplicationType = "Application"
	ActionType      = "Action"
)

// Policy is one static Cedar policy.
type Policy struct {
	Name      string
	Statement string
}

// GroupEntityID is the id Verified Permissions assigns a Cognito group entity.
func GroupEntityID(userPoolID, group string) string {
	return userPoolID + "|" + group
}

// UserEntityID is the id Verified Permissions assigns a Cognito user entity.
func UserEntityID(userPoolID, sub string) string {
	return userPoolID + "|" + sub
}

// UserPoolArn returns the ARN of a Cognito user pool.
func UserPoolArn(region, accountID, userPoolID string) string {
	return fmt.Sprintf("arn:%s:cognito-idp:%s:%s:userpool/%s", awssdk.PartitionForRegion(region), region, accountID, userPoolID)
}

// RenderPolicies fills the embedded policy templates for namespace and pool.
// Policies are ordered by file name.
func RenderPolicies(namespace, userPoolID string) ([]Policy, error) {
	if namespace == "" || userPoolID == "" {
		return nil, fmt.Errorf("namespace and user pool id are required")
	}
	names, err := fs.Glob(assets, "assets/policies/*.cedar")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	r := strings.NewReplacer("${NAMESPACE}", namespace, "${USER_POOL_ID}", userPoolID)
	out := make([]Policy, 0, len(names))
	for _, n := range names {
		b, err := assets.ReadFile(n)
		if err != nil {
			return nil, err
		}
		out = append(out, Policy{
			Name:      strings.TrimSuffix(path.Base(n), ".cedar"),
			Statement: r.Replace(string(b)),
		})
	}
	return out, nil
}

// LoadPolicyDir reads every *.cedar file under dir, recursively, in path order.
func LoadPolicyDir(dir string) ([]Policy, error) {
	files, err := utils.GlobRecursive(dir, "**/*.cedar")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	out := make([]Policy, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy %s: %w", f, err)
		}
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			rel = filepath.Base(f)
		}
		out = append(out, Policy{Name: strings.TrimSuffix(filepath.ToSlash(rel), ".cedar"), Statement: string(b)})
	}
	return out, nil
}

// PolicyClient is the subset of the Verified Permissions client used for policies.
type PolicyClient interface {
	vpapi.ListPoliciesAPIClient
	GetPolicy(ctx context.Context, in *vpapi.GetPolicyInput, optFns ...func(*vpapi.Options)) (*vpapi.GetPolicyOutput, error)
	CreatePolicy(ctx context.Context, in *vpapi.CreatePolicyInput, optFns ...func(*vpapi.Options)) (*vpapi.CreatePolicyOutput, error)
}

// SyncResult lists policies by outcome, by name.
type SyncResult struct {
	Created   []string
	Unchanged []string
}

// SyncPolicies creates each policy whose statement is not already present in
// the store. Statements are compared with whitespace collapsed. Existing
// policies are never updated or deleted.
func SyncPolicies(ctx context.Context, client PolicyClient, policyStoreID string, policies []Policy, dryRun bool, log logging.Logger) (SyncResult, error) {
	log = logging.OrNop(log)
	existing, err := existingStatements(ctx, client, policyStoreID)
	if err != nil {
		return SyncResult{}, err
	}
	var res SyncResult
	for _, p := range policies {
		norm := utils.CollapseWhitespace(p.Statement)
		if _, ok := existing[norm]; ok {
			res.Unchanged = append(res.Unchanged, p.Name)
			continue
		}
		if dryRun {
			log.Info("policymodel.policy.would_create", logging.Fields{"name": p.Name})
			res.Created = append(res.Created, p.Name)
			continue
		}
		out, err := client.CreatePolicy(ctx, &vpapi.CreatePolicyInput{
			PolicyStoreId: aws.String(policyStoreID),
			Definition: &vpapiTypes.PolicyDefinitionMemberStatic{Value: vpapiTypes.StaticPolicyDefinition{
				Statement:   aws.String(p.Statement),
				Description: aws.String(p.Name),
			}},
		})
		if err != nil {
			return res, fmt.Errorf("failed to create policy %s: %w", p.Name, awserrors.Classify(err))
		}
		existing[norm] = struct{}{}
		log.Info("policymodel.policy.created", logging.Fields{"name": p.Name, "policyId": aws.ToString(out.PolicyId)})
		res.Created = append(res.Created, p.Name)
	}
	return res, nil
}

func existingStatements(ctx context.Context, client PolicyClient, policyStoreID string) (map[string]struct{}, error) {
	seen := map[string]struct{}{}
	p := vpapi.NewListPoliciesPaginator(client, &vpapi.ListPoliciesInput{PolicyStoreId: aws.String(policyStoreID)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list policies: %w", awserrors.Classify(err))
		}
		for _, item := range page.Policies {
			if item.PolicyType != vpapiTypes.PolicyTypeStatic {
				continue
			}
			got, err := client.GetPolicy(ctx, &vpapi.GetPolicyInput{PolicyStoreId: aws.String(policyStoreID), PolicyId: item.PolicyId})
			if err != nil {
				return nil, fmt.Errorf("failed to get policy %s: %w", aws.ToString(item.PolicyId), awserrors.Classify(err))
			}
			if def, ok := got.Definition.(*vpapiTypes.PolicyDefinitionDetailMemberStatic); ok {
				seen[utils.CollapseWhitespace(aws.ToString(def.Value.Statement))] = struct{}{}
			}
		}
	}
	return seen, nil
}
