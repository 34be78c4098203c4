package integration

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/avpiotdemo/authorizer/internal/token"
	"github.com/avpiotdemo/authorizer/internal/utils"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

// RoleBody is the GET /role payload for a caller with at least one group.
// Group is always present, even when the group name is empty.
type RoleBody struct {
	Group string `json:"group"`
}

// NoGroupBody is the GET /role payload for a caller without groups.
type NoGroupBody struct {
	Message string `json:"message"`
}

// Role reports the caller's primary group so the front-end can pick a view.
type Role struct {
	headers map[string]string
	log     logging.Logger
}

// NewRole returns a GET /role handler.
func NewRole(corsOrigin string, log logging.Logger) *Role {
	return &Role{headers: CORSHeaders(corsOrigin, "GET,OPTIONS"), log: logging.OrNop(log)}
}

// Handle decodes the bearer token without verifying it; the gateway has
// already run the authorizer.
func (h *Role) Handle(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	raw, err := token.FromHeaders(req.Headers)
	switch {
	case errors.Is(err, token.ErrMissingAuthorization):
		return jsonResponse(http.StatusBadRequest, h.headers, ErrorBody{Error: "Authorization header is missing"}), nil
	case err != nil:
		return jsonResponse(http.StatusBadRequest, h.headers, ErrorBody{Error: "Invalid token format"}), nil
	}
	h.log.Debug("role.token", logging.Fields{"token": utils.Mask(raw, 10)})

	claims, err := token.ParseClaims(raw)
	if err != nil {
		h.log.Warn("role.token.invalid", logging.Fields{"error": err})
		return jsonResponse(http.StatusBadRequest, h.headers, ErrorBody{Error: "Invalid token format"}), nil
	}
	group, ok := claims.PrimaryGroup()
	if !ok {
		return jsonResponse(http.StatusOK, h.headers, NoGroupBody{Message: "User does not belong to any group"}), nil
	}
	return jsonResponse(http.StatusOK, h.headers, RoleBody{Group: group}), nil
}
