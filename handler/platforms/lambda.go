package platforms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"entitystore/config"
	"entitystore/handler"
	"entitystore/observability"
)

// LambdaAdapter serves a handler from the AWS Lambda runtime. It accepts
// API Gateway proxy events and SQS batches.
type LambdaAdapter struct {
	handler     RequestHandler
	config      *config.LambdaConfig
	logger      observability.Logger
	afterInvoke func(context.Context) error
}

// NewLambdaAdapter creates a Lambda adapter. A nil cfg uses
// config.DefaultLambdaConfig.
func NewLambdaAdapter(h RequestHandler, cfg *config.LambdaConfig, logger observability.Logger) *LambdaAdapter {
	if cfg == nil {
		defaults := config.DefaultLambdaConfig()
		cfg = &defaults
	}
	return &LambdaAdapter{
		handler: h,
		config:  cfg,
		logger:  logger,
	}
}

// WithAfterInvoke registers fn to run at the end of every invocation,
// before the runtime may freeze the process. Pushed metrics are flushed
// this way. Errors from fn are logged and do not fail the invocation.
func (a *LambdaAdapter) WithAfterInvoke(fn func(context.Context) error) *LambdaAdapter {
	a.afterInvoke = fn
	return a
}

// Start hands control to the Lambda runtime. It does not return.
func (a *LambdaAdapter) Start() {
	lambda.Start(a.HandleEvent)
}

// eventShape holds the fields that tell supported event shapes apart.
type eventShape struct {
	Records []struct {
		EventSource string `json:"eventSource"`
	} `json:"Records"`
	HTTPMethod string `json:"httpMethod"`
}

// HandleEvent routes a raw Lambda event to the SQS or API Gateway path,
// then runs the after-invoke hook.
func (a *LambdaAdapter) HandleEvent(ctx context.Context, event json.RawMessage) (interface{}, error) {
	result, err := a.route(ctx, event)

	if a.afterInvoke != nil {
		if hookErr := a.afterInvoke(ctx); hookErr != nil {
			a.logger.Warn(ctx, "after-invoke hook failed", observability.Fields{
				"error": hookErr.Error(),
			})
		}
	}

	return result, err
}

func (a *LambdaAdapter) route(ctx context.Context, event json.RawMessage) (interface{}, error) {
	var shape eventShape
	if err := json.Unmarshal(event, &shape); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	switch {
	case len(shape.Records) > 0 && shape.Records[0].EventSource == "aws:sqs":
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(event, &sqsEvent); err != nil {
			return nil, fmt.Errorf("failed to decode SQS event: %w", err)
		}
		return a.handleSQSEvent(ctx, sqsEvent)

	case shape.HTTPMethod != "":
		var apiEvent events.APIGatewayProxyRequest
		if err := json.Unmarshal(event, &apiEvent); err != nil {
			return nil, fmt.Errorf("failed to decode API Gateway event: %w", err)
		}
		return a.handleAPIGatewayEvent(ctx, apiEvent)
	}

	return nil, fmt.Errorf("unsupported event type")
}

func (a *LambdaAdapter) handleAPIGatewayEvent(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if isHealthCheck(event.Path) {
		status, body := http.StatusOK, map[string]interface{}{"status": "healthy", "worker": a.handler.Worker().Name()}
		if err := a.handler.Health(ctx); err != nil {
			status, body = http.StatusServiceUnavailable, map[string]interface{}{"status": "unhealthy", "error": err.Error()}
		}
		return jsonProxyResponse(status, "", body)
	}

	req, err := a.buildRequestFromAPIGateway(event)
	if err != nil {
		resp := handler.NewErrorResponse(req.ID, handler.CodeValidation, "Invalid request body", err.Error())
		return jsonProxyResponse(http.StatusBadRequest, req.ID, resp)
	}

	resp, err := a.handler.Handle(ctx, req)
	if resp.ID == "" {
		resp.ID = req.ID
	}
	if err != nil && resp.Error == nil {
		resp = handler.NewErrorResponse(req.ID, handler.CodeInternal, "Request processing failed", err.Error())
	}

	return jsonProxyResponse(StatusCode(resp), resp.ID, resp)
}

func (a *LambdaAdapter) buildRequestFromAPIGateway(event events.APIGatewayProxyRequest) (handler.Request, error) {
	requestID := event.RequestContext.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	action := event.PathParameters["action"]
	if action == "" {
		action = actionFromPath(event.Path)
	}

	meta := map[string]string{
		"http_method": event.HTTPMethod,
		"http_path":   event.Path,
	}
	for key, value := range event.QueryStringParameters {
		meta["query_"+key] = value
	}
	for key, value := range event.Headers {
		name := strings.ToLower(key)
		if name == "authorization" {
			value = redact(value)
		}
		meta["header_"+strings.ReplaceAll(name, "-", "_")] = value
	}

	req := handler.Request{
		ID:        requestID,
		Source:    "apigateway",
		Action:    action,
		Meta:      meta,
		Timestamp: time.Now().UTC(),
	}

	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return req, err
		}
		body = decoded
	}
	req.Payload = body

	return req, nil
}

func jsonProxyResponse(status int, requestID string, body interface{}) (events.APIGatewayProxyResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("failed to encode response: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if requestID != "" {
		headers["X-Request-ID"] = requestID
	}

	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(data),
	}, nil
}

// handleSQSEvent processes every record. With partial batch failure
// enabled, failed records are reported by message ID; otherwise the
// first failure fails the whole batch.
func (a *LambdaAdapter) handleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{
		BatchItemFailures: []events.SQSBatchItemFailure{},
	}

	for _, record := range event.Records {
		err := a.processSQSMessage(ctx, record)
		if err == nil {
			continue
		}

		a.logger.Error(ctx, "SQS message failed", err, observability.Fields{
			"message_id": record.MessageId,
		})

		if !a.config.EnablePartialBatchFailure {
			return response, err
		}
		response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{
			ItemIdentifier: record.MessageId,
		})
	}

	return response, nil
}

// processSQSMessage returns an error only for failures worth redelivering.
// Non-retryable failures are logged and the message is dropped.
func (a *LambdaAdapter) processSQSMessage(ctx context.Context, record events.SQSMessage) error {
	request := buildRequestFromSQS(record)

	if a.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.ProcessingTimeout)
		defer cancel()
	}

	response, err := a.handler.Handle(ctx, request)
	if err != nil {
		return fmt.Errorf("handler error: %w", err)
	}

	if !response.Success && response.Error != nil {
		if response.Error.Retryable {
			return fmt.Errorf("retryable error: %s", response.Error.Message)
		}
		a.logger.Warn(ctx, "Dropping SQS message after non-retryable failure", observability.Fields{
			"message_id": record.MessageId,
			"error_code": response.Error.Code,
			"error_msg":  response.Error.Message,
		})
	}

	return nil
}

func buildRequestFromSQS(record events.SQSMessage) handler.Request {
	meta := make(map[string]string)
	for key, attr := range record.MessageAttributes {
		if attr.StringValue != nil {
			meta[key] = *attr.StringValue
		}
	}

	meta["sqs_message_id"] = record.MessageId
	meta["sqs_event_source"] = record.EventSource

	payload := json.RawMessage(record.Body)
	if !json.Valid(payload) {
		wrapped, _ := json.Marshal(record.Body)
		payload = wrapped
	}

	requestID := record.MessageId
	if id, ok := meta["request_id"]; ok && id != "" {
		requestID = id
	}

	return handler.Request{
		ID:        requestID,
		Source:    "sqs",
		Action:    meta["action"],
		Payload:   payload,
		Meta:      meta,
		Timestamp: time.Now().UTC(),
	}
}
