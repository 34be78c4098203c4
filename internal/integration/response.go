// Package integration holds the Lambda proxy handlers that sit behind the
// authorizer: device listing, download requests and group lookup.
package integration

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

const corsAllowHeaders = "Content-Type,Authorization,X-Amz-Date,X-Api-Key,X-Amz-Security-Token"

// CORSHeaders returns the response headers for a browser client on origin.
func CORSHeaders(origin, methods string) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":      origin,
		"Access-Control-Allow-Headers":     corsAllowHeaders,
		"Access-Control-Allow-Methods":     methods,
		"Access-Control-Allow-Credentials": "true",
		"Content-Type":                     "application/json",
	}
}

// ErrorBody is the JSON error payload shared by all handlers.
type ErrorBody struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func jsonResponse(status int, headers map[string]string, body any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"response encoding failed"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(b),
	}
}
