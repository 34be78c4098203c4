package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/avpiotdemo/authorizer/internal/config"
	"github.com/avpiotdemo/authorizer/internal/integration"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

func main() {
	cfg, err := config.LoadIntegration()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	lambda.Start(integration.NewRole(cfg.CORSAllowOrigin, logger).Handle)
}
