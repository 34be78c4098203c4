package policymodel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	vpapi "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	vpapiTypes "github.com/aws/aws-sdk-go-v2/service/verifiedpermissions/types"
	"gopkg.in/yaml.v3"

	awserrors "github.com/avpiotdemo/authorizer/internal/awssdk/errors"
	"github.com/avpiotdemo/authorizer/internal/utils"
)

// MaxSchemaBytes is the Verified Permissions limit on a schema document.
const MaxSchemaBytes = 100000

var namespaceNameRe = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

// actionNameRe matches the "<method> <resource path>" action ids built by the authorizer.
var actionNameRe = regexp.MustCompile(`^(get|post|put|patch|delete|head|options) /\S*$`)

var requiredEntityTypes = []string{"User", "UserGroup", "Application"}

// Schema is a validated, canonicalised schema document.
type Schema struct {
	JSON      string
	Namespace string
	Actions   []string
	Warnings  []string
}

// DefaultSchema returns the embedded schema.
func DefaultSchema() (*Schema, error) {
	raw, err := assets.ReadFile("assets/schema.yaml")
	if err != nil {
		return nil, err
	}
	return LoadAndValidateSchema(raw, ".yaml")
}

// LoadSchemaFile reads and validates a YAML or JSON schema file.
func LoadSchemaFile(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return LoadAndValidateSchema(raw, filepath.Ext(path))
}

// LoadAndValidateSchema parses a YAML/JSON schema definition and returns its
// canonical (minified) JSON with the namespace, sorted action names and any warnings.
func LoadAndValidateSchema(raw []byte, ext string) (*Schema, error) {
	var doc any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML schema: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON schema: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema extension %q; expected .yaml, .yml, or .json", ext)
	}

	top, ns, body, err := extractSingleNamespace(doc)
	if err != nil {
		return nil, err
	}
	if err := validateEntityTypes(ns, body); err != nil {
		return nil, err
	}
	acts, err := collectActionNames(ns, body)
	if err != nil {
		return nil, err
	}
	js, err := canonicalizeSchema(top)
	if err != nil {
		return nil, err
	}
	return &Schema{JSON: js, Namespace: ns, Actions: acts, Warnings: namespaceWarnings(ns)}, nil
}

func extractSingleNamespace(doc any) (map[string]any, string, map[string]any, error) {
	top, ok := doc.(map[string]any)
	if !ok {
		return nil, "", nil, fmt.Errorf("schema must be a mapping of namespace to {entityTypes, actions}")
	}
	if len(top) != 1 {
		return nil, "", nil, fmt.Errorf("a policy store schema holds a single namespace; found %d", len(top))
	}
	for ns, v := range top {
		body, ok := v.(map[string]any)
		if !ok {
			return nil, "", nil, fmt.Errorf("schema namespace %q must map to an object", ns)
		}
		return top, ns, body, nil
	}
	return nil, "", nil, fmt.Errorf("schema must contain exactly one namespace")
}

func namespaceWarnings(ns string) []string {
	if namespaceNameRe.MatchString(ns) {
		return nil
	}
	return []string{fmt.Sprintf("namespace %q is non-standard; consider PascalCase", ns)}
}

func validateEntityTypes(ns string, body map[string]any) error {
	et, ok := body["entityTypes"].(map[string]any)
	if !ok {
		return fmt.Errorf("schema namespace %q must define entityTypes as an object", ns)
	}
	var missing []string
	for _, r := range requiredEntityTypes {
		if _, ok := et[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema namespace %q missing required entity types: %s", ns, strings.Join(missing, ", "))
	}
	return nil
}

func collectActionNames(ns string, body map[string]any) ([]string, error) {
	amap, ok := body["actions"].(map[string]any)
	if !ok || len(amap) == 0 {
		return nil, fmt.Errorf("schema namespace %q defines no actions", ns)
	}
	acts := make([]string, 0, len(amap))
	var bad []string
	for name := range amap {
		if !actionNameRe.MatchString(name) {
			bad = append(bad, name)
		}
		acts = append(acts, name)
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, fmt.Errorf("action names must look like \"<method> <path>\": %s", strings.Join(bad, ", "))
	}
	sort.Strings(acts)
	return acts, nil
}

func canonicalizeSchema(top map[string]any) (string, error) {
	b, err := json.Marshal(top)
	if err != nil {
		return "", fmt.Errorf("failed to encode schema as JSON: %w", err)
	}
	if sz := len(b); sz > MaxSchemaBytes {
		return "", fmt.Errorf("schema JSON size %d exceeds %d byte limit", sz, MaxSchemaBytes)
	}
	return string(b), nil
}

// SchemaClient is the subset of the Verified Permissions client used for schemas.
type SchemaClient interface {
	GetSchema(ctx context.Context, in *vpapi.GetSchemaInput, optFns ...func(*vpapi.Options)) (*vpapi.GetSchemaOutput, error)
	PutSchema(ctx context.Context, in *vpapi.PutSchemaInput, optFns ...func(*vpapi.Options)) (*vpapi.PutSchemaOutput, error)
}

// PutSchemaIfChanged applies cedarJSON only when it differs from the stored
// schema. It reports whether a put was (or, with dryRun, would be) made.
func PutSchemaIfChanged(ctx context.Context, client SchemaClient, policyStoreID, cedarJSON string, dryRun bool) (bool, error) {
	var current string
	getOut, err := client.GetSchema(ctx, &vpapi.GetSchemaInput{PolicyStoreId: &policyStoreID})
	switch {
	case err == nil && getOut.Schema != nil:
		current = *getOut.Schema
	case err != nil && awserrors.Category(err) != "not_found":
		return false, fmt.Errorf("failed to get schema: %w", awserrors.Classify(err))
	}
	if utils.NormalizeJSON(current) == utils.NormalizeJSON(cedarJSON) {
		return false, nil
	}
	if dryRun {
		return true, nil
	}
	_, err = client.PutSchema(ctx, &vpapi.PutSchemaInput{
		PolicyStoreId: &policyStoreID,
		Definition:    &vpapiTypes.SchemaDefinitionMemberCedarJson{Value: cedarJSON},
	})
	if err != nil {
		return false, fmt.Errorf("failed to put schema: %w", awserrors.Classify(err))
	}
	return true, nil
}
