package platforms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"entitystore/config"
	"entitystore/handler"
	obmocks "entitystore/observability/mocks"
)

func stringPtr(s string) *string {
	return &s
}

func sqsRecord(id, action, body string) events.SQSMessage {
	return events.SQSMessage{
		MessageId:   id,
		EventSource: "aws:sqs",
		Body:        body,
		MessageAttributes: map[string]events.SQSMessageAttribute{
			"action": {StringValue: stringPtr(action), DataType: "String"},
		},
	}
}

func TestLambdaAdapter_HandleSQSEvent(t *testing.T) {
	t.Run("routes action attribute", func(t *testing.T) {
		h, _ := newMockHandler(1024)
		h.On("Handle", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
			return req.Source == "sqs" && req.ID == "msg-123" && req.Action == "remove" &&
				string(req.Payload) == `{"id":"a.txt"}`
		})).Return(handler.Response{Success: true}, nil)

		adapter := NewLambdaAdapter(h, nil, obmocks.NewNopLogger())
		response, err := adapter.handleSQSEvent(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{sqsRecord("msg-123", "remove", `{"id":"a.txt"}`)},
		})

		require.NoError(t, err)
		assert.Empty(t, response.BatchItemFailures)
		h.AssertExpectations(t)
	})

	t.Run("partial batch failure", func(t *testing.T) {
		h, _ := newMockHandler(1024)
		h.On("Handle", mock.Anything, mock.MatchedBy(func(req handler.Request) bool { return req.ID == "msg-1" })).
			Return(handler.Response{Success: true}, nil)
		h.On("Handle", mock.Anything, mock.MatchedBy(func(req handler.Request) bool { return req.ID == "msg-2" })).
			Return(handler.NewErrorResponse("msg-2", handler.CodeServiceUnavailable, "not connected", ""), nil)
		h.On("Handle", mock.Anything, mock.MatchedBy(func(req handler.Request) bool { return req.ID == "msg-3" })).
			Return(handler.NewErrorResponse("msg-3", handler.CodeNotFound, "Entity not found", ""), nil)
		h.On("Handle", mock.Anything, mock.MatchedBy(func(req handler.Request) bool { return req.ID == "msg-4" })).
			Return(handler.Response{}, assert.AnError)

		adapter := NewLambdaAdapter(h, nil, obmocks.NewNopLogger())
		response, err := adapter.handleSQSEvent(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{
				sqsRecord("msg-1", "save", `{}`),
				sqsRecord("msg-2", "save", `{}`),
				sqsRecord("msg-3", "remove", `{}`),
				sqsRecord("msg-4", "get", `{}`),
			},
		})

		require.NoError(t, err)
		assert.Equal(t, []events.SQSBatchItemFailure{
			{ItemIdentifier: "msg-2"},
			{ItemIdentifier: "msg-4"},
		}, response.BatchItemFailures)
	})

	t.Run("whole batch fails without partial reporting", func(t *testing.T) {
		h, _ := newMockHandler(1024)
		h.On("Handle", mock.Anything, mock.Anything).Return(handler.Response{}, assert.AnError)

		adapter := NewLambdaAdapter(h, &config.LambdaConfig{}, obmocks.NewNopLogger())
		_, err := adapter.handleSQSEvent(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{sqsRecord("msg-1", "save", `{}`), sqsRecord("msg-2", "save", `{}`)},
		})

		assert.ErrorIs(t, err, assert.AnError)
		h.AssertNumberOfCalls(t, "Handle", 1)
	})
}

func TestBuildRequestFromSQS(t *testing.T) {
	t.Run("plain text body is wrapped as JSON string", func(t *testing.T) {
		req := buildRequestFromSQS(sqsRecord("msg-1", "save", "not json"))

		assert.Equal(t, `"not json"`, string(req.Payload))
		assert.Equal(t, "save", req.Action)
		assert.Equal(t, "msg-1", req.Meta["sqs_message_id"])
	})

	t.Run("request_id attribute overrides message ID", func(t *testing.T) {
		record := sqsRecord("msg-1", "get", `{}`)
		record.MessageAttributes["request_id"] = events.SQSMessageAttribute{StringValue: stringPtr("req-7")}

		assert.Equal(t, "req-7", buildRequestFromSQS(record).ID)
	})
}

func TestLambdaAdapter_APIGateway(t *testing.T) {
	t.Run("action from path parameter", func(t *testing.T) {
		h, _ := newMockHandler(1024)
		h.On("Handle", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
			return req.Action == "get" && req.ID == "apigw-1" && req.Source == "apigateway" &&
				req.Meta["header_authorization"] == "[REDACTED]"
		})).Return(handler.NewErrorResponse("apigw-1", handler.CodeNotFound, "Entity not found", ""), nil)

		adapter := NewLambdaAdapter(h, nil, obmocks.NewNopLogger())
		resp, err := adapter.handleAPIGatewayEvent(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod:     http.MethodPost,
			Path:           "/entities/get",
			PathParameters: map[string]string{"action": "get"},
			Headers:        map[string]string{"Authorization": "Basic abc"},
			Body:           `{"id":"missing"}`,
			RequestContext: events.APIGatewayProxyRequestContext{RequestID: "apigw-1"},
		})

		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "apigw-1", resp.Headers["X-Request-ID"])
		h.AssertExpectations(t)
	})

	t.Run("action from path and base64 body", func(t *testing.T) {
		h, _ := newMockHandler(1024)
		h.On("Handle", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
			return req.Action == "save" && string(req.Payload) == `{"id":"b.bin"}`
		})).Return(handler.Response{Success: true, Data: json.RawMessage(`{"key":"b.bin"}`)}, nil)

		adapter := NewLambdaAdapter(h, nil, obmocks.NewNopLogger())
		resp, err := adapter.handleAPIGatewayEvent(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod:      http.MethodPost,
			Path:            "/save",
			Body:            base64.StdEncoding.EncodeToString([]byte(`{"id":"b.bin"}`)),
			IsBase64Encoded: true,
		})

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"key":"b.bin"}`, string(mustResponse(t, []byte(resp.Body)).Data))
	})

	t.Run("invalid base64 body", func(t *testing.T) {
		h, _ := newMockHandler(1024)

		adapter := NewLambdaAdapter(h, nil, obmocks.NewNopLogger())
		resp, err := adapter.handleAPIGatewayEvent(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod:      http.MethodPost,
			Path:            "/save",
			Body:            "%%%",
			IsBase64Encoded: true,
		})

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		h.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	})

	t.Run("health", func(t *testing.T) {
		h, _ := newMockHandler(1024)
		h.On("Health", mock.Anything).Return(nil)

		adapter := NewLambdaAdapter(h, nil, obmocks.NewNopLogger())
		resp, err := adapter.handleAPIGatewayEvent(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: http.MethodGet,
			Path:       "/health",
		})

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Body, "healthy")
	})
}

func TestLambdaAdapter_HandleEvent(t *testing.T) {
	h, _ := newMockHandler(1024)
	h.On("Handle", mock.Anything, mock.Anything).Return(handler.Response{Success: true}, nil)
	adapter := NewLambdaAdapter(h, nil, obmocks.NewNopLogger())

	t.Run("sqs", func(t *testing.T) {
		raw, err := json.Marshal(events.SQSEvent{Records: []events.SQSMessage{sqsRecord("m1", "count", `{}`)}})
		require.NoError(t, err)

		out, err := adapter.HandleEvent(context.Background(), raw)

		require.NoError(t, err)
		assert.IsType(t, events.SQSEventResponse{}, out)
	})

	t.Run("api gateway", func(t *testing.T) {
		raw, err := json.Marshal(events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost, Path: "/count"})
		require.NoError(t, err)

		out, err := adapter.HandleEvent(context.Background(), raw)

		require.NoError(t, err)
		assert.IsType(t, events.APIGatewayProxyResponse{}, out)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := adapter.HandleEvent(context.Background(), json.RawMessage(`{"detail-type":"Scheduled Event"}`))

		assert.EqualError(t, err, "unsupported event type")
	})
}

func TestLambdaAdapter_AfterInvoke(t *testing.T) {
	h, _ := newMockHandler(1024)
	h.On("Handle", mock.Anything, mock.Anything).Return(handler.Response{Success: true}, nil)

	calls := 0
	adapter := NewLambdaAdapter(h, nil, obmocks.NewNopLogger()).
		WithAfterInvoke(func(context.Context) error {
			calls++
			return nil
		})

	raw, err := json.Marshal(events.SQSEvent{Records: []events.SQSMessage{sqsRecord("m1", "count", `{}`)}})
	require.NoError(t, err)
	_, err = adapter.HandleEvent(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = adapter.HandleEvent(context.Background(), json.RawMessage(`{"detail-type":"Scheduled Event"}`))
	assert.EqualError(t, err, "unsupported event type")
	assert.Equal(t, 2, calls, "hook runs after failed invocations too")
}

func TestLambdaAdapter_AfterInvokeErrorIsLogged(t *testing.T) {
	h, _ := newMockHandler(1024)
	h.On("Handle", mock.Anything, mock.Anything).Return(handler.Response{Success: true}, nil)
	logger := obmocks.NewNopLogger()

	adapter := NewLambdaAdapter(h, nil, logger).
		WithAfterInvoke(func(context.Context) error {
			return errors.New("put metric data throttled")
		})

	raw, err := json.Marshal(events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost, Path: "/count"})
	require.NoError(t, err)
	out, err := adapter.HandleEvent(context.Background(), raw)

	require.NoError(t, err)
	assert.IsType(t, events.APIGatewayProxyResponse{}, out)
	logger.AssertCalled(t, "Warn", mock.Anything, "after-invoke hook failed", mock.Anything)
}
