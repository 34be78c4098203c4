// Package authorizer implements the API Gateway REQUEST authorizer that turns
// a Cognito bearer token into an Allow/Deny policy by asking Amazon Verified
// Permissions. Every failure path produces the same Deny response; the
// gateway never sees an error from this package.
package authorizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avpiotdemo/authorizer/internal/awssdk"
	awserrors "github.com/avpiotdemo/authorizer/internal/awssdk/errors"
	"github.com/avpiotdemo/authorizer/internal/config"
	"github.com/avpiotdemo/authorizer/internal/token"
	"github.com/avpiotdemo/authorizer/internal/utils"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

const tracerName = "github.com/avpiotdemo/authorizer/internal/authorizer"

// DecisionClient is the subset of the Verified Permissions client used here.
type DecisionClient interface {
	IsAuthorizedWithToken(ctx context.Context, in *vpapi.IsAuthorizedWithTokenInput, optFns ...func(*vpapi.Options)) (*vpapi.IsAuthorizedWithTokenOutput, error)
}

// Authorizer evaluates gateway requests against one policy store.
type Authorizer struct {
	cfg     config.Authorizer
	client  DecisionClient
	log     logging.Logger
	tracer  trace.Tracer
	initErr error
}

// New returns an Authorizer for cfg.
func New(cfg config.Authorizer, client DecisionClient, log logging.Logger) *Authorizer {
	return &Authorizer{
		cfg:    cfg,
		client: client,
		log:    logging.OrNop(log),
		tracer: otel.Tracer(tracerName),
	}
}

// Unavailable returns an Authorizer that denies every request with cause.
// It stands in when configuration could not be loaded at start-up.
func Unavailable(cause error, log logging.Logger) *Authorizer {
	if cause == nil {
		cause = errors.New("authorizer unavailable")
	}
	return &Authorizer{log: logging.OrNop(log), tracer: otel.Tracer(tracerName), initErr: cause}
}

// Handle is the Lambda entry point. It never returns an error: any failure
// from Evaluate is logged and replaced by DenyResponse.
func (a *Authorizer) Handle(ctx context.Context, req events.APIGatewayCustomAuthorizerRequestTypeRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	resp, err := a.Evaluate(ctx, req)
	if err != nil {
		a.log.Warn("authorizer.deny", logging.Fields{
			"methodArn": req.MethodArn,
			"reason":    DenyReason(err),
			"error":     err,
		})
		return DenyResponse(req.MethodArn), nil
	}
	return resp, nil
}

// Evaluate extracts the token, asks the decision service and translates the
// verdict. A nil error means the response reflects a real decision, which may
// itself be Deny.
func (a *Authorizer) Evaluate(ctx context.Context, req events.APIGatewayCustomAuthorizerRequestTypeRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	none := events.APIGatewayCustomAuthorizerResponse{}
	if a.initErr != nil {
		return none, a.initErr
	}

	raw, err := token.FromHeaders(req.Headers)
	if err != nil {
		return none, err
	}
	claims, err := token.ParseClaims(raw)
	if err != nil {
		return none, err
	}
	if _, err := claims.PrincipalID(); err != nil {
		return none, err
	}

	actionID := ActionID(req.RequestContext.HTTPMethod, req.RequestContext.ResourcePath)
	s3Path := S3Path(req.QueryStringParameters)
	a.log.Info("authorizer.request", logging.Fields{
		"actionId": actionID,
		"region":   awssdk.ArnRegion(req.MethodArn),
		"token":    utils.Mask(raw, 10),
		"sub":      claims.Subject,
		"groups":   claims.Groups,
	})

	in, err := BuildQuery(a.cfg.PolicyStoreID, a.cfg.Namespace, a.cfg.TokenType, raw, actionID)
	if err != nil {
		return none, err
	}
	verdict, err := a.decide(ctx, in, actionID)
	if err != nil {
		return none, err
	}

	resp, err := Translate(claims, verdict, actionID, s3Path, req.MethodArn)
	if err != nil {
		return none, err
	}
	a.log.Info("authorizer.decision", logging.Fields{
		"actionId":    actionID,
		"decision":    verdict.Decision,
		"effect":      resp.PolicyDocument.Statement[0].Effect,
		"principalId": resp.PrincipalID,
	})
	return resp, nil
}

func (a *Authorizer) decide(ctx context.Context, in *vpapi.IsAuthorizedWithTokenInput, actionID string) (Verdict, error) {
	ctx, span := a.tracer.Start(ctx, "verifiedpermissions.IsAuthorizedWithToken", trace.WithAttributes(
		attribute.String("avp.policy_store_id", a.cfg.PolicyStoreID),
		attribute.String("avp.action_id", actionID),
		attribute.String("avp.token_type", a.cfg.TokenType),
	))
	defer span.End()

	out, err := a.client.IsAuthorizedWithToken(ctx, in)
	if err != nil {
		err = awserrors.Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, awserrors.Category(err))
		return Verdict{}, fmt.Errorf("is authorized with token: %w", err)
	}
	v, err := VerdictFrom(out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad_verdict")
		return Verdict{}, err
	}
	span.SetAttributes(attribute.String("avp.decision", v.Decision))
	return v, nil
}

// DenyReason labels a failure for logs.
func DenyReason(err error) string {
	switch {
	case errors.Is(err, token.ErrMissingAuthorization):
		return "missing_authorization"
	case errors.Is(err, token.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, token.ErrMissingClaim):
		return "missing_claim"
	case errors.Is(err, errIncompletePrincipal):
		return "bad_verdict"
	}
	var (
		ad *awserrors.AccessDeniedError
		rt *awserrors.RetryableError
		nf *awserrors.NotFoundError
		ve *awserrors.ValidationError
		op *awserrors.OpError
	)
	if errors.As(err, &ad) || errors.As(err, &rt) || errors.As(err, &nf) || errors.As(err, &ve) || errors.As(err, &op) {
		return "decision_" + awserrors.Category(err)
	}
	return "internal"
}
