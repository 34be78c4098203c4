package authorizer

import (
	"errors"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"

	"github.com/avpiotdemo/authorizer/internal/token"
)

// Response shape constants for REST API Lambda authorizers.
const (
	PolicyVersion = "2012-10-17"
	InvokeAction  = "execute-api:Invoke"
	EffectAllow   = "Allow"
	EffectDeny    = "Deny"

	ContextActionID = "actionId"
	ContextS3Path   = "s3Path"

	// S3PathParam is the query parameter forwarded to the download handler.
	S3PathParam = "s3Path"
)

// Principal is an entity resolved by the decision service.
type Principal struct {
	EntityType string
	EntityID   string
}

// String renders the principal as a Cedar entity reference: Type::"id".
func (p Principal) String() string {
	return p.EntityType + `::"` + p.EntityID + `"`
}

// Verdict is the decision service's answer for one request.
type Verdict struct {
	Decision  string
	Principal *Principal
}

var errIncompletePrincipal = errors.New("decision principal is missing entityType or entityId")

// VerdictFrom converts an IsAuthorizedWithToken result.
func VerdictFrom(out *vpapi.IsAuthorizedWithTokenOutput) (Verdict, error) {
	if out == nil {
		return Verdict{}, nil
	}
	v := Verdict{Decision: string(out.Decision)}
	if out.Principal != nil {
		p := Principal{EntityType: aws.ToString(out.Principal.EntityType), EntityID: aws.ToString(out.Principal.EntityId)}
		if p.EntityType == "" || p.EntityID == "" {
			return Verdict{}, errIncompletePrincipal
		}
		v.Principal = &p
	}
	return v, nil
}

// Effect maps a decision to a policy effect. Only a case-insensitive "ALLOW"
// allows; every other value, including the empty string, denies.
func Effect(decision string) string {
	if strings.EqualFold(decision, "ALLOW") {
		return EffectAllow
	}
	return EffectDeny
}

// ResolvePrincipalID prefers the principal resolved by the decision service
// (e.g. a group entity) over the "<pool>|<sub>" identity derived from claims.
func ResolvePrincipalID(claims *token.Claims, v Verdict) (string, error) {
	def, err := claims.PrincipalID()
	if err != nil {
		return "", err
	}
	if v.Principal != nil {
		return v.Principal.String(), nil
	}
	return def, nil
}

// S3Path returns the s3Path query parameter, or "" when absent.
func S3Path(query map[string]string) string {
	return query[S3PathParam]
}

// Translate builds the gateway response for a completed decision.
func Translate(claims *token.Claims, v Verdict, actionID, s3Path, methodArn string) (events.APIGatewayCustomAuthorizerResponse, error) {
	principalID, err := ResolvePrincipalID(claims, v)
	if err != nil {
		return events.APIGatewayCustomAuthorizerResponse{}, err
	}
	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID:    principalID,
		PolicyDocument: policy(Effect(v.Decision), methodArn),
		Context: map[string]interface{}{
			ContextActionID: actionID,
			ContextS3Path:   s3Path,
		},
	}, nil
}

// DenyResponse is the canonical fail-closed response: no principal, no context.
func DenyResponse(methodArn string) events.APIGatewayCustomAuthorizerResponse {
	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID:    "",
		PolicyDocument: policy(EffectDeny, methodArn),
		Context:        map[string]interface{}{},
	}
}

func policy(effect, methodArn string) events.APIGatewayCustomAuthorizerPolicy {
	return events.APIGatewayCustomAuthorizerPolicy{
		Version: PolicyVersion,
		Statement: []events.IAMPolicyStatement{{
			Action:   []string{InvokeAction},
			Effect:   effect,
			Resource: []string{methodArn},
		}},
	}
}
