package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	vptypes "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avpiotdemo/authorizer/internal/config"
	"github.com/avpiotdemo/authorizer/internal/policymodel"
	"github.com/avpiotdemo/authorizer/internal/testutil"
)

const pool = "us-east-1_Abc123"

func TestParseFlags(t *testing.T) {
	var out bytes.Buffer
	cfg, err := parseFlags([]string{"-policy-store-id", "ps-1", "-user-pool-id", pool, "-dry-run"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ps-1", cfg.PolicyStoreID)
	assert.Equal(t, policymodel.DefaultNamespace, cfg.Namespace)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "info", cfg.LogLevel)

	_, err = parseFlags([]string{"-user-pool-id", pool}, &out)
	assert.Error(t, err, "policy store id is required unless -local")

	_, err = parseFlags([]string{"-user-pool-id", pool, "-local"}, &out)
	assert.NoError(t, err)

	_, err = parseFlags([]string{"-local"}, &out)
	assert.Error(t, err)
}

func TestRun_Local(t *testing.T) {
	log := &testutil.BufferLogger{}
	cfg := config.Sync{UserPoolID: pool, Namespace: policymodel.DefaultNamespace, Local: true}
	require.NoError(t, run(context.Background(), cfg, nil, log))
	assert.True(t, log.Has("policysync.local.ok"))
}

func TestRun_IdentitySourceSummary(t *testing.T) {
	log := &testutil.BufferLogger{}
	cfg := config.Sync{UserPoolID: pool, Namespace: policymodel.DefaultNamespace, Local: true, Region: "us-east-1", AccountID: "123456789012"}
	require.NoError(t, run(context.Background(), cfg, nil, log))
	assert.True(t, log.Has("arn:aws:cognito-idp:us-east-1:123456789012:userpool/"+pool))
	assert.True(t, log.Has("AvpIotDemoApi::UserGroup"))

	_, err := parseFlags([]string{"-user-pool-id", pool, "-local", "-account-id", "123"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRun_LocalFailingCanary(t *testing.T) {
	p := filepath.Join(t.TempDir(), "canaries.yaml")
	require.NoError(t, os.WriteFile(p, []byte("cases:\n  - user: op\n    groups: [operator]\n    action: post /download\n    expect: ALLOW\n"), 0o600))
	cfg := config.Sync{UserPoolID: pool, Namespace: policymodel.DefaultNamespace, Local: true, CanaryFile: p}
	err := run(context.Background(), cfg, nil, &testutil.BufferLogger{})
	assert.ErrorContains(t, err, "unexpected decision")
}

func TestRun_NamespaceMismatch(t *testing.T) {
	cfg := config.Sync{UserPoolID: pool, Namespace: "OtherApi", Local: true}
	assert.ErrorContains(t, run(context.Background(), cfg, nil, &testutil.BufferLogger{}), "does not match")
}

// storeBackedByEvaluator answers IsAuthorized with the local Cedar evaluation
// of the policies the store currently holds.
func storeBackedByEvaluator(t *testing.T) *testutil.FakePolicyStore {
	store := &testutil.FakePolicyStore{}
	store.Authorize = func(in *vpapi.IsAuthorizedInput) vptypes.Decision {
		var policies []policymodel.Policy
		for id, stmt := range store.Statements {
			policies = append(policies, policymodel.Policy{Name: id, Statement: stmt})
		}
		e, err := policymodel.NewLocalEvaluator(policymodel.DefaultNamespace, pool, policies)
		require.NoError(t, err)
		list := in.Entities.(*vptypes.EntitiesDefinitionMemberEntityList).Value
		var groups []string
		for _, p := range list[len(list)-1].Parents {
			groups = append(groups, strings.TrimPrefix(aws.ToString(p.EntityId), pool+"|"))
		}
		user := strings.TrimPrefix(aws.ToString(in.Principal.EntityId), pool+"|")
		return vptypes.Decision(e.Authorize(user, groups, aws.ToString(in.Action.ActionId)).Value)
	}
	return store
}

func TestRun_AppliesSchemaPoliciesAndCanaries(t *testing.T) {
	store := storeBackedByEvaluator(t)
	cfg := config.Sync{PolicyStoreID: "ps-1", UserPoolID: pool, Namespace: policymodel.DefaultNamespace}
	require.NoError(t, run(context.Background(), cfg, store, &testutil.BufferLogger{}))

	assert.Len(t, store.Puts, 1)
	assert.Equal(t, []string{"manager", "operator"}, store.Created)
	assert.NotEmpty(t, store.AuthzCalls)

	// second run is a no-op apart from canaries
	require.NoError(t, run(context.Background(), cfg, store, &testutil.BufferLogger{}))
	assert.Len(t, store.Puts, 1)
	assert.Len(t, store.Created, 2)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	store := storeBackedByEvaluator(t)
	log := &testutil.BufferLogger{}
	cfg := config.Sync{PolicyStoreID: "ps-1", UserPoolID: pool, Namespace: policymodel.DefaultNamespace, DryRun: true}
	require.NoError(t, run(context.Background(), cfg, store, log))
	assert.Empty(t, store.Puts)
	assert.Empty(t, store.Created)
	assert.Empty(t, store.AuthzCalls)
	assert.True(t, log.Has("policymodel.policy.would_create"))
}
