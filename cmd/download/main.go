package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"

	"github.com/avpiotdemo/authorizer/internal/awssdk"
	"github.com/avpiotdemo/authorizer/internal/config"
	"github.com/avpiotdemo/authorizer/internal/integration"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

func main() {
	ctx := context.Background()
	cfg, err := config.LoadIntegration()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	awsCfg, err := awssdk.LoadDefault(ctx, cfg.Region)
	if err != nil {
		log.Fatal(err)
	}
	lambda.Start(integration.NewDownload(iotdataplane.NewFromConfig(awsCfg), *cfg, logger).Handle)
}
