package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"

	"github.com/avpiotdemo/authorizer/internal/awssdk"
	"github.com/avpiotdemo/authorizer/internal/config"
	"github.com/avpiotdemo/authorizer/internal/policymodel"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	logger, err := logging.NewZapLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), cfg, nil, logger); err != nil {
		logger.Error("policysync.failed", logging.Fields{"error": err})
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (config.Sync, error) {
	var cfg config.Sync
	fs := flag.NewFlagSet("avp-policy-sync", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.PolicyStoreID, "policy-store-id", "", "Verified Permissions policy store id")
	fs.StringVar(&cfg.UserPoolID, "user-pool-id", "", "Cognito user pool id the group policies refer to")
	fs.StringVar(&cfg.Namespace, "namespace", policymodel.DefaultNamespace, "Cedar namespace")
	fs.StringVar(&cfg.Region, "region", "", "AWS region (default from the environment)")
	fs.StringVar(&cfg.AccountID, "account-id", "", "account owning the user pool; enables the identity source summary")
	fs.StringVar(&cfg.SchemaFile, "schema", "", "schema file (.yaml/.yml/.json); default is the built-in schema")
	fs.StringVar(&cfg.PolicyDir, "policy-dir", "", "directory of extra *.cedar policies, searched recursively")
	fs.StringVar(&cfg.CanaryFile, "canaries", "", "extra canary cases (YAML)")
	fs.BoolVar(&cfg.Local, "local", false, "validate and run canaries offline; no AWS calls")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "report changes without applying them")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if err := config.Validate(&cfg); err != nil {
		fmt.Fprintln(out, err)
		return cfg, err
	}
	return cfg, nil
}

// store is the Verified Permissions surface the sync needs.
type store interface {
	policymodel.SchemaClient
	policymodel.PolicyClient
	policymodel.AuthorizationClient
}

// run validates the model and, unless Local, applies it to the policy store.
// A nil client is replaced by one built from the default AWS configuration.
func run(ctx context.Context, cfg config.Sync, client store, log logging.Logger) error {
	schema, err := loadSchema(cfg.SchemaFile)
	if err != nil {
		return err
	}
	for _, w := range schema.Warnings {
		log.Warn("policysync.schema.warning", logging.Fields{"warning": w})
	}
	if schema.Namespace != cfg.Namespace {
		return fmt.Errorf("schema namespace %q does not match -namespace %q", schema.Namespace, cfg.Namespace)
	}

	policies, err := policymodel.RenderPolicies(cfg.Namespace, cfg.UserPoolID)
	if err != nil {
		return err
	}
	if cfg.PolicyDir != "" {
		extra, err := policymodel.LoadPolicyDir(cfg.PolicyDir)
		if err != nil {
			return err
		}
		policies = append(policies, extra...)
	}
	if cfg.AccountID != "" {
		log.Info("policysync.identity_source", logging.Fields{
			"userPoolArn":         policymodel.UserPoolArn(cfg.Region, cfg.AccountID, cfg.UserPoolID),
			"principalEntityType": cfg.Namespace + "::" + policymodel.UserType,
			"groupEntityType":     cfg.Namespace + "::" + policymodel.UserGroupType,
		})
	}
	cases, err := policymodel.LoadCanaries(cfg.CanaryFile)
	if err != nil {
		return err
	}

	local, err := policymodel.NewLocalEvaluator(cfg.Namespace, cfg.UserPoolID, policies)
	if err != nil {
		return err
	}
	if cfg.Local || cfg.DryRun {
		if err := policymodel.RunCanaries(ctx, cases, policymodel.LocalDecider(local), log); err != nil {
			return err
		}
	}
	if cfg.Local {
		log.Info("policysync.local.ok", logging.Fields{"policies": len(policies), "canaries": len(cases)})
		return nil
	}

	if client == nil {
		awsCfg, err := awssdk.LoadDefault(ctx, cfg.Region)
		if err != nil {
			return err
		}
		client = vpapi.NewFromConfig(awsCfg)
	}

	changed, err := policymodel.PutSchemaIfChanged(ctx, client, cfg.PolicyStoreID, schema.JSON, cfg.DryRun)
	if err != nil {
		return err
	}
	log.Info("policysync.schema", logging.Fields{"changed": changed, "dryRun": cfg.DryRun})

	res, err := policymodel.SyncPolicies(ctx, client, cfg.PolicyStoreID, policies, cfg.DryRun, log)
	if err != nil {
		return err
	}
	log.Info("policysync.policies", logging.Fields{"created": res.Created, "unchanged": res.Unchanged, "dryRun": cfg.DryRun})

	if cfg.DryRun {
		return nil
	}
	return policymodel.RunCanaries(ctx, cases, policymodel.RemoteDecider(client, cfg.PolicyStoreID, cfg.Namespace, cfg.UserPoolID), log)
}

func loadSchema(path string) (*policymodel.Schema, error) {
	if path == "" {
		return policymodel.DefaultSchema()
	}
	return policymodel.LoadSchemaFile(path)
}
