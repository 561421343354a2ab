// Package sqs publishes entity events to an Amazon SQS queue.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	jsoniter "github.com/json-iterator/go"

	"entitystore/adapter"
	"entitystore/config"
	"entitystore/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sendAPI is the subset of *sqs.Client the publisher uses
type sendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher implements adapter.EventPublisher on top of one SQS queue.
// The event name and collection travel as message attributes.
type Publisher struct {
	client   sendAPI
	queueURL string
	logger   observability.Logger
	metrics  observability.Metrics
}

// NewPublisher loads the default AWS configuration for cfg.SQSRegion and
// returns a publisher for cfg.SQSQueueURL.
func NewPublisher(ctx context.Context, cfg *config.EventsConfig, logger observability.Logger, metrics observability.Metrics) (*Publisher, error) {
	if cfg.SQSQueueURL == "" {
		return nil, fmt.Errorf("SQS queue URL is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SQSRegion))
	if err != nil {
		logger.Error(ctx, "failed to load AWS config", err, nil)
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info(ctx, "SQS publisher initialized successfully", observability.Fields{
		"region":    cfg.SQSRegion,
		"queue_url": cfg.SQSQueueURL,
	})

	return newPublisher(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, logger, metrics), nil
}

func newPublisher(client sendAPI, queueURL string, logger observability.Logger, metrics observability.Metrics) *Publisher {
	return &Publisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		metrics:  metrics,
	}
}

// Publish sends one event
func (p *Publisher) Publish(ctx context.Context, event adapter.Event) error {
	start := time.Now()
	defer func() {
		p.metrics.RecordDuration("publish", time.Since(start).Seconds())
	}()

	body, err := json.Marshal(event)
	if err != nil {
		p.metrics.RecordError("publish", "marshal_failed")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event":      stringAttribute(event.Name),
			"collection": stringAttribute(event.Collection),
		},
	})
	if err != nil {
		p.metrics.RecordError("publish", "send_failed")
		p.logger.Error(ctx, "failed to send event", err, observability.Fields{
			"event": event.Name,
			"key":   event.Key,
		})
		return fmt.Errorf("failed to send event: %w", err)
	}

	p.metrics.RecordSuccess("publish")
	p.logger.Debug(ctx, "event sent successfully", observability.Fields{
		"event": event.Name,
		"key":   event.Key,
		"size":  len(body),
	})

	return nil
}

// Close is a no-op; the SQS client holds no connection.
func (p *Publisher) Close() error {
	return nil
}

func stringAttribute(value string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(value),
	}
}
