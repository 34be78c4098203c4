package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"

	"github.com/avpiotdemo/authorizer/internal/authorizer"
	"github.com/avpiotdemo/authorizer/internal/awssdk"
	"github.com/avpiotdemo/authorizer/internal/config"
	"github.com/avpiotdemo/authorizer/internal/telemetry"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

func main() {
	ctx := context.Background()
	cfg, cfgErr := config.LoadAuthorizer()
	level := "info"
	if cfg != nil {
		level = cfg.LogLevel
	}
	logger, err := logging.NewZapLogger(level)
	if err != nil {
		log.Fatal(err)
	}

	tracing := &telemetry.Provider{}
	if tcfg, err := config.LoadTelemetry("avp-authorizer"); err != nil {
		logger.Warn("authorizer.telemetry.disabled", logging.Fields{"error": err})
	} else if tracing, err = telemetry.Init(ctx, *tcfg); err != nil {
		logger.Warn("authorizer.telemetry.disabled", logging.Fields{"error": err})
		tracing = &telemetry.Provider{}
	}

	a := newAuthorizer(ctx, cfg, cfgErr, logger)
	lambda.Start(func(ctx context.Context, req events.APIGatewayCustomAuthorizerRequestTypeRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
		resp, err := a.Handle(ctx, req)
		if ferr := tracing.Flush(ctx); ferr != nil {
			logger.Warn("authorizer.telemetry.flush_failed", logging.Fields{"error": ferr})
		}
		return resp, err
	})
}

// newAuthorizer builds the handler once per process. Configuration failures
// still start the runtime so every request gets an explicit Deny.
func newAuthorizer(ctx context.Context, cfg *config.Authorizer, cfgErr error, logger logging.Logger) *authorizer.Authorizer {
	if cfgErr != nil {
		logger.Error("authorizer.config.invalid", logging.Fields{"error": cfgErr})
		return authorizer.Unavailable(cfgErr, logger)
	}
	awsCfg, err := awssdk.LoadNoRetry(ctx, cfg.Region)
	if err != nil {
		logger.Error("authorizer.aws.config_failed", logging.Fields{"error": err})
		return authorizer.Unavailable(err, logger)
	}
	return authorizer.New(*cfg, vpapi.NewFromConfig(awsCfg), logger)
}
