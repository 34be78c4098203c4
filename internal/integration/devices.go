package integration

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/smithy-go"

	awserrors "github.com/avpiotdemo/authorizer/internal/awssdk/errors"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

// Thing is one registry entry as returned to the client.
type Thing struct {
	ThingName     string            `json:"thingName"`
	ThingArn      string            `json:"thingArn,omitempty"`
	ThingTypeName string            `json:"thingTypeName,omitempty"`
	Attributes    map[string]string `json:"attributes"`
	Version       int64             `json:"version"`
}

// DevicesBody is the success payload of GET /devices.
type DevicesBody struct {
	Message string  `json:"message"`
	Things  []Thing `json:"things"`
}

// Devices lists the IoT things visible to the caller's account.
type Devices struct {
	client  iot.ListThingsAPIClient
	headers map[string]string
	log     logging.Logger
}

// NewDevices returns a GET /devices handler.
func NewDevices(client iot.ListThingsAPIClient, corsOrigin string, log logging.Logger) *Devices {
	return &Devices{client: client, headers: CORSHeaders(corsOrigin, "GET,OPTIONS"), log: logging.OrNop(log)}
}

// Handle pages through ListThings until exhausted.
func (h *Devices) Handle(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	things := []Thing{}
	p := iot.NewListThingsPaginator(h.client, &iot.ListThingsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return h.failure(err), nil
		}
		for _, t := range page.Things {
			things = append(things, Thing{
				ThingName:     aws.ToString(t.ThingName),
				ThingArn:      aws.ToString(t.ThingArn),
				ThingTypeName: aws.ToString(t.ThingTypeName),
				Attributes:    t.Attributes,
				Version:       t.Version,
			})
		}
	}
	h.log.Info("devices.list", logging.Fields{"count": len(things)})
	return jsonResponse(http.StatusOK, h.headers, DevicesBody{
		Message: "Successfully retrieved IoT things",
		Things:  things,
	}), nil
}

func (h *Devices) failure(err error) events.APIGatewayProxyResponse {
	var api smithy.APIError
	if !errors.As(err, &api) {
		h.log.Error("devices.list.failed", logging.Fields{"error": err})
		return jsonResponse(http.StatusInternalServerError, h.headers, ErrorBody{Error: err.Error(), Type: "GeneralException"})
	}
	status := StatusForError(err)
	h.log.Warn("devices.list.rejected", logging.Fields{"code": api.ErrorCode(), "status": status})
	return jsonResponse(status, h.headers, ErrorBody{Error: api.ErrorMessage(), Type: "ClientError"})
}

// StatusForError maps a service error to the HTTP status returned to clients.
func StatusForError(err error) int {
	switch awserrors.Category(err) {
	case "access_denied":
		return http.StatusForbidden
	case "retryable":
		return http.StatusTooManyRequests
	case "not_found":
		return http.StatusNotFound
	case "validation":
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
