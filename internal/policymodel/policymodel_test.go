package policymodel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	vptypes "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avpiotdemo/authorizer/internal/testutil"
)

const pool = "us-east-1_Abc123"

func TestDefaultSchema(t *testing.T) {
	s, err := DefaultSchema()
	require.NoError(t, err)
	assert.Equal(t, DefaultNamespace, s.Namespace)
	assert.Equal(t, []string{"get /devices", "get /role", "post /download"}, s.Actions)
	assert.Empty(t, s.Warnings)
	assert.True(t, strings.HasPrefix(s.JSON, `{"AvpIotDemoApi":`))
	assert.NotContains(t, s.JSON, "\n")
}

func TestLoadAndValidateSchema_Errors(t *testing.T) {
	tests := map[string]string{
		"two namespaces":  `{"A":{"entityTypes":{},"actions":{}},"B":{}}`,
		"not an object":   `["A"]`,
		"missing types":   `{"A":{"entityTypes":{"User":{}},"actions":{"get /x":{}}}}`,
		"no actions":      `{"A":{"entityTypes":{"User":{},"UserGroup":{},"Application":{}}}}`,
		"bad action name": `{"A":{"entityTypes":{"User":{},"UserGroup":{},"Application":{}},"actions":{"ReadThing":{}}}}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadAndValidateSchema([]byte(doc), ".json")
			assert.Error(t, err)
		})
	}
	_, err := LoadAndValidateSchema([]byte(`{}`), ".toml")
	assert.ErrorContains(t, err, "unsupported schema extension")
}

func TestLoadAndValidateSchema_SizeLimit(t *testing.T) {
	big := strings.Repeat("x", MaxSchemaBytes)
	doc := `{"A":{"entityTypes":{"User":{},"UserGroup":{},"Application":{"shape":{"type":"Record","attributes":{"` + big + `":{"type":"String"}}}}},"actions":{"get /x":{}}}}`
	_, err := LoadAndValidateSchema([]byte(doc), ".json")
	assert.ErrorContains(t, err, "exceeds")
}

func TestLoadAndValidateSchema_NamespaceWarning(t *testing.T) {
	s, err := LoadAndValidateSchema([]byte(`{"my-api":{"entityTypes":{"User":{},"UserGroup":{},"Application":{}},"actions":{"get /x":{}}}}`), ".json")
	require.NoError(t, err)
	require.Len(t, s.Warnings, 1)
	assert.Contains(t, s.Warnings[0], "my-api")
}

func TestLoadSchemaFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "schema.yml")
	require.NoError(t, os.WriteFile(p, []byte("Api:\n  entityTypes:\n    User: {}\n    UserGroup: {}\n    Application: {}\n  actions:\n    get /x: {}\n"), 0o600))
	s, err := LoadSchemaFile(p)
	require.NoError(t, err)
	assert.Equal(t, "Api", s.Namespace)
}

func TestPutSchemaIfChanged(t *testing.T) {
	s, err := DefaultSchema()
	require.NoError(t, err)
	ctx := context.Background()

	store := &testutil.FakePolicyStore{GetErr: &smithy.GenericAPIError{Code: "ResourceNotFoundException"}}
	changed, err := PutSchemaIfChanged(ctx, store, "ps", s.JSON, false)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, store.Puts, 1)

	store.GetErr = nil
	pretty := strings.ReplaceAll(*store.Schema, ",", ", ")
	store.Schema = &pretty
	changed, err = PutSchemaIfChanged(ctx, store, "ps", s.JSON, false)
	require.NoError(t, err)
	assert.False(t, changed, "formatting differences are not changes")
	assert.Len(t, store.Puts, 1)

	old := `{"AvpIotDemoApi":{}}`
	store.Schema = &old
	changed, err = PutSchemaIfChanged(ctx, store, "ps", s.JSON, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, store.Puts, 1, "dry run must not write")

	store.GetErr = &smithy.GenericAPIError{Code: "AccessDeniedException"}
	_, err = PutSchemaIfChanged(ctx, store, "ps", s.JSON, false)
	assert.Error(t, err)
}

func TestRenderPolicies(t *testing.T) {
	ps, err := RenderPolicies(DefaultNamespace, pool)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "manager", ps[0].Name)
	assert.Equal(t, "operator", ps[1].Name)
	assert.Contains(t, ps[0].Statement, `principal in AvpIotDemoApi::UserGroup::"us-east-1_Abc123|manager"`)
	assert.Contains(t, ps[0].Statement, `AvpIotDemoApi::Action::"post /download"`)
	assert.NotContains(t, ps[1].Statement, "post /download")
	for _, p := range ps {
		assert.NotContains(t, p.Statement, "${")
	}

	_, err = RenderPolicies(DefaultNamespace, "")
	assert.Error(t, err)
}

func TestLoadPolicyDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "extra"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra", "auditor.cedar"), []byte(`permit (principal, action, resource);`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))
	ps, err := LoadPolicyDir(dir)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "extra/auditor", ps[0].Name)
}

func TestIdentifiers(t *testing.T) {
	assert.Equal(t, "us-east-1_Abc123|manager", GroupEntityID(pool, "manager"))
	assert.Equal(t, "us-east-1_Abc123|sub-1", UserEntityID(pool, "sub-1"))
	assert.Equal(t, "arn:aws:cognito-idp:us-east-1:123456789012:userpool/us-east-1_Abc123", UserPoolArn("us-east-1", "123456789012", pool))
	assert.Equal(t, "arn:aws-cn:cognito-idp:cn-north-1:123456789012:userpool/p", UserPoolArn("cn-north-1", "123456789012", "p"))
}

func evaluator(t *testing.T) *LocalEvaluator {
	t.Helper()
	ps, err := RenderPolicies(DefaultNamespace, pool)
	require.NoError(t, err)
	e, err := NewLocalEvaluator(DefaultNamespace, pool, ps)
	require.NoError(t, err)
	return e
}

func TestLocalEvaluator_GroupPolicies(t *testing.T) {
	e := evaluator(t)
	tests := []struct {
		groups []string
		action string
		want   string
	}{
		{[]string{"manager"}, "get /devices", "ALLOW"},
		{[]string{"manager"}, "post /download", "ALLOW"},
		{[]string{"operator"}, "get /devices", "ALLOW"},
		{[]string{"operator"}, "post /download", "DENY"},
		{[]string{"operator", "manager"}, "post /download", "ALLOW"},
		{nil, "get /devices", "DENY"},
		{[]string{"manager"}, "delete /devices", "DENY"},
	}
	for _, tt := range tests {
		d := e.Authorize("user-1", tt.groups, tt.action)
		assert.Equal(t, tt.want, d.Value, "groups=%v action=%s", tt.groups, tt.action)
		assert.Equal(t, d.Value == "ALLOW", d.Allowed())
		if d.Allowed() {
			assert.NotEmpty(t, d.PolicyIDs)
		}
	}
}

func TestLocalEvaluator_OtherPoolGroupDenied(t *testing.T) {
	ps, err := RenderPolicies(DefaultNamespace, pool)
	require.NoError(t, err)
	e, err := NewLocalEvaluator(DefaultNamespace, "us-east-1_Other", ps)
	require.NoError(t, err)
	assert.Equal(t, "DENY", e.Authorize("user-1", []string{"manager"}, "get /devices").Value)
}

func TestNewLocalEvaluator_ParseError(t *testing.T) {
	_, err := NewLocalEvaluator(DefaultNamespace, pool, []Policy{{Name: "bad", Statement: "permit ("}})
	assert.Error(t, err)
}

func TestSyncPolicies(t *testing.T) {
	ps, err := RenderPolicies(DefaultNamespace, pool)
	require.NoError(t, err)
	ctx := context.Background()

	// manager already present with different whitespace
	store := &testutil.FakePolicyStore{Statements: map[string]string{
		"existing-1": strings.Join(strings.Fields(ps[0].Statement), "  "),
	}}
	res, err := SyncPolicies(ctx, store, "ps", ps, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"operator"}, res.Created)
	assert.Equal(t, []string{"manager"}, res.Unchanged)
	assert.Empty(t, store.Created, "dry run must not create")

	res, err = SyncPolicies(ctx, store, "ps", ps, false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"operator"}, res.Created)
	assert.Equal(t, []string{"operator"}, store.Created)
	assert.Len(t, store.Statements, 2)

	res, err = SyncPolicies(ctx, store, "ps", ps, false, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Len(t, res.Unchanged, 2)
}

func TestSyncPolicies_CreateError(t *testing.T) {
	ps, err := RenderPolicies(DefaultNamespace, pool)
	require.NoError(t, err)
	store := &testutil.FakePolicyStore{CreateErr: &smithy.GenericAPIError{Code: "ValidationException"}}
	_, err = SyncPolicies(context.Background(), store, "ps", ps, false, nil)
	assert.ErrorContains(t, err, "manager")
}

func TestLoadCanaries(t *testing.T) {
	base, err := LoadCanaries("")
	require.NoError(t, err)
	require.NotEmpty(t, base)

	dir := t.TempDir()
	p := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(p, []byte("cases:\n  - user: u\n    groups: [manager]\n    action: get /role\n    expect: deny\n"), 0o600))
	all, err := LoadCanaries(p)
	require.NoError(t, err)
	assert.Len(t, all, len(base)+1)
	assert.Equal(t, "get /role", all[len(all)-1].Action)

	require.NoError(t, os.WriteFile(p, []byte("cases:\n  - user: u\n    action: get /role\n    expect: maybe\n"), 0o600))
	_, err = LoadCanaries(p)
	assert.ErrorContains(t, err, "expect")

	_, err = LoadCanaries(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRunCanaries_Local(t *testing.T) {
	cases, err := LoadCanaries("")
	require.NoError(t, err)
	log := &testutil.BufferLogger{}
	require.NoError(t, RunCanaries(context.Background(), cases, LocalDecider(evaluator(t)), log))
	assert.True(t, log.Has("policymodel.canaries.passed"))
}

func TestRunCanaries_ReportsEveryMismatch(t *testing.T) {
	cases := []CanaryCase{
		{User: "u", Groups: []string{"operator"}, Action: "post /download", Expect: "ALLOW"},
		{User: "u", Groups: []string{"manager"}, Action: "get /devices", Expect: "ALLOW"},
		{User: "u", Action: "get /devices", Expect: "ALLOW"},
	}
	err := RunCanaries(context.Background(), cases, LocalDecider(evaluator(t)), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canary #1")
	assert.NotContains(t, err.Error(), "canary #2")
	assert.Contains(t, err.Error(), "canary #3")
}

func TestRunCanaries_Remote(t *testing.T) {
	store := &testutil.FakePolicyStore{Authorize: func(in *vpapi.IsAuthorizedInput) vptypes.Decision {
		list := in.Entities.(*vptypes.EntitiesDefinitionMemberEntityList).Value
		user := list[len(list)-1]
		for _, p := range user.Parents {
			if aws.ToString(p.EntityId) == GroupEntityID(pool, "manager") {
				return vptypes.DecisionAllow
			}
		}
		return vptypes.DecisionDeny
	}}
	cases := []CanaryCase{
		{User: "u1", Groups: []string{"manager"}, Action: "post /download", Expect: "ALLOW"},
		{User: "u2", Groups: []string{"operator"}, Action: "post /download", Expect: "DENY"},
	}
	require.NoError(t, RunCanaries(context.Background(), cases, RemoteDecider(store, "ps", DefaultNamespace, pool), nil))
	require.Len(t, store.AuthzCalls, 2)

	in := store.AuthzCalls[0]
	assert.Equal(t, "ps", aws.ToString(in.PolicyStoreId))
	assert.Equal(t, "AvpIotDemoApi::User", aws.ToString(in.Principal.EntityType))
	assert.Equal(t, "us-east-1_Abc123|u1", aws.ToString(in.Principal.EntityId))
	assert.Equal(t, "AvpIotDemoApi::Action", aws.ToString(in.Action.ActionType))
	assert.Equal(t, "post /download", aws.ToString(in.Action.ActionId))
	assert.Equal(t, "AvpIotDemoApi::Application", aws.ToString(in.Resource.EntityType))
	assert.Equal(t, "AvpIotDemoApi", aws.ToString(in.Resource.EntityId))
}
