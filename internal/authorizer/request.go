package authorizer

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	vptypes "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions/types"
)

// Token type names accepted in TOKEN_TYPE.
const (
	TokenTypeIdentity = "identityToken"
	TokenTypeAccess   = "accessToken"
)

// ActionID names one route+method pair, e.g. "get /devices".
func ActionID(method, resourcePath string) string {
	return strings.ToLower(method) + " " + resourcePath
}

// ActionType returns the Cedar action entity type for namespace.
func ActionType(namespace string) string { return namespace + "::Action" }

// ApplicationType returns the entity type of the single coarse-grained resource.
func ApplicationType(namespace string) string { return namespace + "::Application" }

// BuildQuery assembles the decision query for one request. Authorization is
// always evaluated against the one Application entity named after the
// namespace; per-route distinctions live entirely in the action id.
func BuildQuery(policyStoreID, namespace, tokenType, rawToken, actionID string) (*vpapi.IsAuthorizedWithTokenInput, error) {
	in := &vpapi.IsAuthorizedWithTokenInput{
		PolicyStoreId: aws.String(policyStoreID),
		Action: &vptypes.ActionIdentifier{
			ActionType: aws.String(ActionType(namespace)),
			ActionId:   aws.String(actionID),
		},
		Resource: &vptypes.EntityIdentifier{
			EntityType: aws.String(ApplicationType(namespace)),
			EntityId:   aws.String(namespace),
		},
	}
	switch tokenType {
	case TokenTypeIdentity:
		in.IdentityToken = aws.String(rawToken)
	case TokenTypeAccess:
		in.AccessToken = aws.String(rawToken)
	default:
		return nil, fmt.Errorf("unsupported token type %q", tokenType)
	}
	return in, nil
}
