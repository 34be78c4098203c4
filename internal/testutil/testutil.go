package testutil

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	vptypes "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions/types"
	"github.com/aws/smithy-go"

	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

// FakeDecisionClient is a minimal fake for IsAuthorizedWithToken used in tests.
type FakeDecisionClient struct {
	In    *vpapi.IsAuthorizedWithTokenInput
	Out   *vpapi.IsAuthorizedWithTokenOutput
	Err   error
	Calls int
}

// IsAuthorizedWithToken records the input and returns the configured output and error.
func (f *FakeDecisionClient) IsAuthorizedWithToken(_ context.Context, in *vpapi.IsAuthorizedWithTokenInput, _ ...func(*vpapi.Options)) (*vpapi.IsAuthorizedWithTokenOutput, error) {
	f.Calls++
	f.In = in
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Out == nil {
		return &vpapi.IsAuthorizedWithTokenOutput{}, nil
	}
	return f.Out, nil
}

// BufferLogger is a buffer-backed logger that records calls for assertions.
type BufferLogger struct {
	Calls   []string
	Entries []string
	Fields  []logging.Fields
}

// Debug records a debug-level log entry.
func (l *BufferLogger) Debug(msg string, ctx logging.Fields) { l.record("debug", msg, ctx) }

// Info records an info-level log entry.
func (l *BufferLogger) Info(msg string, ctx logging.Fields) { l.record("info", msg, ctx) }

// Warn records a warn-level log entry.
func (l *BufferLogger) Warn(msg string, ctx logging.Fields) { l.record("warn", msg, ctx) }

// Error records an error-level log entry.
func (l *BufferLogger) Error(msg string, ctx logging.Fields) { l.record("error", msg, ctx) }

func (l *BufferLogger) record(level, msg string, ctx logging.Fields) {
	l.Calls = append(l.Calls, level)
	// simple human-readable capture for assertions; not a JSON serializer
	l.Entries = append(l.Entries, fmt.Sprintf("%s: %s ctx=%v", level, msg, ctx))
	l.Fields = append(l.Fields, ctx)
}

// Has reports whether any recorded entry contains sub.
func (l *BufferLogger) Has(sub string) bool {
	for _, e := range l.Entries {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}

var _ logging.Logger = (*BufferLogger)(nil)

// UnsignedToken builds a three-segment token whose payload segment is the
// unpadded base64url encoding of claims. Header and signature are opaque.
func UnsignedToken(claims map[string]any) string {
	b, err := json.Marshal(claims)
	if err != nil {
		panic(err)
	}
	return "aaa." + base64.RawURLEncoding.EncodeToString(b) + ".sig"
}

// CognitoClaims returns a typical ID-token claim set for a user in poolID.
func CognitoClaims(poolID, sub string, groups ...string) map[string]any {
	c := map[string]any{
		"iss":       "https://cognito-idp.us-east-1.amazonaws.com/" + poolID,
		"sub":       sub,
		"token_use": "id",
		"exp":       4102444800,
	}
	if len(groups) > 0 {
		c["cognito:groups"] = groups
	}
	return c
}

// FakeThingLister serves ListThings from a fixed sequence of pages.
type FakeThingLister struct {
	Pages  []*iot.ListThingsOutput
	Err    error
	Inputs []*iot.ListThingsInput
}

// ListThings returns the next page, linking pages with numeric tokens.
func (f *FakeThingLister) ListThings(_ context.Context, in *iot.ListThingsInput, _ ...func(*iot.Options)) (*iot.ListThingsOutput, error) {
	f.Inputs = append(f.Inputs, in)
	if f.Err != nil {
		return nil, f.Err
	}
	idx := 0
	if in.NextToken != nil {
		fmt.Sscanf(*in.NextToken, "%d", &idx)
	}
	if idx >= len(f.Pages) {
		return &iot.ListThingsOutput{}, nil
	}
	out := *f.Pages[idx]
	out.NextToken = nil
	if idx+1 < len(f.Pages) {
		next := fmt.Sprintf("%d", idx+1)
		out.NextToken = &next
	}
	return &out, nil
}

// FakePublisher records Publish calls.
type FakePublisher struct {
	Inputs []*iotdataplane.PublishInput
	Err    error
}

// Publish records the input and returns Err.
func (f *FakePublisher) Publish(_ context.Context, in *iotdataplane.PublishInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error) {
	f.Inputs = append(f.Inputs, in)
	if f.Err != nil {
		return nil, f.Err
	}
	return &iotdataplane.PublishOutput{}, nil
}

// FakePolicyStore is an in-memory policy store for schema, policy and canary tests.
type FakePolicyStore struct {
	Schema     *string
	Statements map[string]string
	GetErr     error
	CreateErr  error
	Puts       []string
	Created    []string
	Authorize  func(in *vpapi.IsAuthorizedInput) vptypes.Decision
	AuthzCalls []*vpapi.IsAuthorizedInput
}

// GetSchema returns Schema or GetErr.
func (f *FakePolicyStore) GetSchema(_ context.Context, _ *vpapi.GetSchemaInput, _ ...func(*vpapi.Options)) (*vpapi.GetSchemaOutput, error) {
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	return &vpapi.GetSchemaOutput{Schema: f.Schema}, nil
}

// PutSchema stores the cedar JSON definition.
func (f *FakePolicyStore) PutSchema(_ context.Context, in *vpapi.PutSchemaInput, _ ...func(*vpapi.Options)) (*vpapi.PutSchemaOutput, error) {
	def, ok := in.Definition.(*vptypes.SchemaDefinitionMemberCedarJson)
	if !ok {
		return nil, fmt.Errorf("unexpected schema definition %T", in.Definition)
	}
	f.Puts = append(f.Puts, def.Value)
	v := def.Value
	f.Schema = &v
	return &vpapi.PutSchemaOutput{}, nil
}

// ListPolicies returns every stored policy on a single page, ordered by id.
func (f *FakePolicyStore) ListPolicies(_ context.Context, _ *vpapi.ListPoliciesInput, _ ...func(*vpapi.Options)) (*vpapi.ListPoliciesOutput, error) {
	ids := make([]string, 0, len(f.Statements))
	for id := range f.Statements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := &vpapi.ListPoliciesOutput{}
	for _, id := range ids {
		out.Policies = append(out.Policies, vptypes.PolicyItem{PolicyId: aws.String(id), PolicyType: vptypes.PolicyTypeStatic})
	}
	return out, nil
}

// GetPolicy returns the stored statement for a policy id.
func (f *FakePolicyStore) GetPolicy(_ context.Context, in *vpapi.GetPolicyInput, _ ...func(*vpapi.Options)) (*vpapi.GetPolicyOutput, error) {
	stmt, ok := f.Statements[aws.ToString(in.PolicyId)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no such policy"}
	}
	return &vpapi.GetPolicyOutput{
		PolicyId:   in.PolicyId,
		PolicyType: vptypes.PolicyTypeStatic,
		Definition: &vptypes.PolicyDefinitionDetailMemberStatic{Value: vptypes.StaticPolicyDefinitionDetail{Statement: aws.String(stmt)}},
	}, nil
}

// CreatePolicy stores a static policy under a sequential id.
func (f *FakePolicyStore) CreatePolicy(_ context.Context, in *vpapi.CreatePolicyInput, _ ...func(*vpapi.Options)) (*vpapi.CreatePolicyOutput, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	def, ok := in.Definition.(*vptypes.PolicyDefinitionMemberStatic)
	if !ok {
		return nil, fmt.Errorf("unexpected policy definition %T", in.Definition)
	}
	if f.Statements == nil {
		f.Statements = map[string]string{}
	}
	id := fmt.Sprintf("policy-%03d", len(f.Statements)+1)
	f.Statements[id] = aws.ToString(def.Value.Statement)
	f.Created = append(f.Created, aws.ToString(def.Value.Description))
	return &vpapi.CreatePolicyOutput{PolicyId: aws.String(id)}, nil
}

// IsAuthorized records the input and answers with Authorize, or DENY.
func (f *FakePolicyStore) IsAuthorized(_ context.Context, in *vpapi.IsAuthorizedInput, _ ...func(*vpapi.Options)) (*vpapi.IsAuthorizedOutput, error) {
	f.AuthzCalls = append(f.AuthzCalls, in)
	d := vptypes.DecisionDeny
	if f.Authorize != nil {
		d = f.Authorize(in)
	}
	return &vpapi.IsAuthorizedOutput{Decision: d}, nil
}
