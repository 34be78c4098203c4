package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"

	"github.com/avpiotdemo/authorizer/internal/authorizer"
	"github.com/avpiotdemo/authorizer/internal/config"
	"github.com/avpiotdemo/authorizer/internal/utils/logging"
)

// TimestampLayout is the UTC timestamp format of download messages.
const TimestampLayout = "2006-01-02 15:04:05Z"

// Publisher is the subset of the IoT data-plane client used here.
type Publisher interface {
	Publish(ctx context.Context, in *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

// DownloadMessage is published to the device topic.
type DownloadMessage struct {
	Timestamp string `json:"timestamp"`
	Device    string `json:"device"`
	S3Path    string `json:"s3Path"`
}

// DownloadBody is the success payload of POST /download.
type DownloadBody struct {
	Message string          `json:"message"`
	Data    DownloadMessage `json:"data"`
}

// Download asks a device to fetch an object by publishing to its topic.
type Download struct {
	client  Publisher
	thing   string
	topic   string
	headers map[string]string
	log     logging.Logger
	now     func() time.Time
}

// NewDownload returns a POST /download handler publishing for cfg.ThingName on cfg.Topic.
func NewDownload(client Publisher, cfg config.Integration, log logging.Logger) *Download {
	return &Download{
		client:  client,
		thing:   cfg.ThingName,
		topic:   cfg.Topic,
		headers: CORSHeaders(cfg.CORSAllowOrigin, "POST,OPTIONS"),
		log:     logging.OrNop(log),
		now:     time.Now,
	}
}

// Handle reads s3Path from the authorizer context, never from the query
// string, so only a path the authorizer saw is ever published.
func (h *Download) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	s3Path := AuthorizerS3Path(req.RequestContext.Authorizer)
	if err := ValidateS3Path(s3Path); err != nil {
		h.log.Warn("download.rejected", logging.Fields{"s3Path": s3Path, "error": err})
		return jsonResponse(http.StatusBadRequest, h.headers, ErrorBody{Error: err.Error()}), nil
	}

	msg := DownloadMessage{
		Timestamp: h.now().UTC().Format(TimestampLayout),
		Device:    h.thing,
		S3Path:    s3Path,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return jsonResponse(http.StatusInternalServerError, h.headers, ErrorBody{Error: err.Error()}), nil
	}
	_, err = h.client.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(h.topic),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		h.log.Error("download.publish.failed", logging.Fields{"topic": h.topic, "error": err})
		return jsonResponse(http.StatusInternalServerError, h.headers, ErrorBody{Error: err.Error()}), nil
	}
	h.log.Info("download.published", logging.Fields{"topic": h.topic, "device": h.thing, "s3Path": s3Path})
	return jsonResponse(http.StatusOK, h.headers, DownloadBody{
		Message: "Successfully published to IoT Core",
		Data:    msg,
	}), nil
}

// AuthorizerS3Path returns the s3Path forwarded by the authorizer, or "".
func AuthorizerS3Path(authz map[string]interface{}) string {
	v, ok := authz[authorizer.ContextS3Path]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ValidateS3Path accepts "" or an s3://bucket/key URI.
func ValidateS3Path(p string) error {
	if p == "" {
		return nil
	}
	rest, ok := strings.CutPrefix(p, "s3://")
	if !ok {
		return fmt.Errorf("s3Path %q must use the s3:// scheme", p)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("s3Path %q must name a bucket and a key", p)
	}
	return nil
}
