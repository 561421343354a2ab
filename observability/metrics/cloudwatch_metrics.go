package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// maxBatch is the number of datums sent per PutMetricData call.
const maxBatch = 20

// flushThreshold wakes Run before its next tick.
const flushThreshold = 500

// maxBuffered caps the datums held between flushes; further datums are dropped.
const maxBuffered = 10000

// PutMetricDataAPI is the subset of *cloudwatch.Client the sink uses
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink buffers datums from every component and sends them to one
// namespace in batches. It is shared by all CloudWatchMetrics of a process.
type CloudWatchSink struct {
	client    PutMetricDataAPI
	namespace string

	mu      sync.Mutex
	buffer  []cwtypes.MetricDatum
	dropped int

	// ready is signalled when the buffer reaches flushThreshold
	ready chan struct{}
}

// NewCloudWatchSink creates a sink writing to namespace
func NewCloudWatchSink(client PutMetricDataAPI, namespace string) *CloudWatchSink {
	return &CloudWatchSink{
		client:    client,
		namespace: namespace,
		buffer:    make([]cwtypes.MetricDatum, 0, maxBatch),
		ready:     make(chan struct{}, 1),
	}
}

func (s *CloudWatchSink) add(datum cwtypes.MetricDatum) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) >= maxBuffered {
		s.dropped++
		return
	}
	s.buffer = append(s.buffer, datum)

	if len(s.buffer) >= flushThreshold {
		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered datums
func (s *CloudWatchSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Flush sends every buffered datum. Batches that fail are not retried;
// the first error is returned after all batches were attempted.
func (s *CloudWatchSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	data := s.buffer
	s.buffer = make([]cwtypes.MetricDatum, 0, maxBatch)
	s.mu.Unlock()

	var firstErr error
	for start := 0; start < len(data); start += maxBatch {
		end := start + maxBatch
		if end > len(data) {
			end = len(data)
		}

		_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(s.namespace),
			MetricData: data[start:end],
		})
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to put metric data: %w", err)
		}
	}

	return firstErr
}

// Run flushes every interval, and early once flushThreshold datums are
// buffered, until ctx is done. It then flushes once more with a fresh five
// second deadline. On Lambda, where the process may be frozen between
// invocations, Flush is also called after each invocation.
func (s *CloudWatchSink) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.Flush(ctx)
		case <-s.ready:
			_ = s.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.Flush(flushCtx)
			cancel()
			return
		}
	}
}

// CloudWatchMetrics implements types.Metrics by buffering datums into a
// CloudWatchSink. Every datum carries a Component dimension.
//
// Emitted metrics:
//   - processed{Component,Operation,Status}
//   - errors{Component,Operation,ErrorType}
//   - duration{Component,Operation} in seconds
//   - object_size{Component,Operation} in bytes
//   - in_progress{Component,Operation}
type CloudWatchMetrics struct {
	component string
	sink      *CloudWatchSink

	mu         sync.Mutex
	inProgress map[string]float64
}

// NewCloudWatch creates metrics for component backed by sink
func NewCloudWatch(component string, sink *CloudWatchSink) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		component:  component,
		sink:       sink,
		inProgress: make(map[string]float64),
	}
}

// RecordSuccess records one successful operation
func (m *CloudWatchMetrics) RecordSuccess(operation string) {
	m.put("processed", 1, cwtypes.StandardUnitCount, "Operation", operation, "Status", "success")
}

// RecordError records one failed operation and its error category
func (m *CloudWatchMetrics) RecordError(operation string, errorType string) {
	m.put("processed", 1, cwtypes.StandardUnitCount, "Operation", operation, "Status", "error")
	m.put("errors", 1, cwtypes.StandardUnitCount, "Operation", operation, "ErrorType", errorType)
}

// RecordDuration records an operation duration in seconds
func (m *CloudWatchMetrics) RecordDuration(operation string, seconds float64) {
	m.put("duration", seconds, cwtypes.StandardUnitSeconds, "Operation", operation)
}

// RecordObjectSize records an object size. Negative sizes are skipped.
func (m *CloudWatchMetrics) RecordObjectSize(operation string, bytes int64) {
	if bytes < 0 {
		return
	}
	m.put("object_size", float64(bytes), cwtypes.StandardUnitBytes, "Operation", operation)
}

// StartOperation raises the in-progress gauge
func (m *CloudWatchMetrics) StartOperation(operation string) {
	m.adjust(operation, 1)
}

// EndOperation lowers the in-progress gauge
func (m *CloudWatchMetrics) EndOperation(operation string) {
	m.adjust(operation, -1)
}

func (m *CloudWatchMetrics) adjust(operation string, delta float64) {
	m.mu.Lock()
	m.inProgress[operation] += delta
	value := m.inProgress[operation]
	m.mu.Unlock()

	m.put("in_progress", value, cwtypes.StandardUnitCount, "Operation", operation)
}

// put queues one datum. dims are name/value pairs.
func (m *CloudWatchMetrics) put(name string, value float64, unit cwtypes.StandardUnit, dims ...string) {
	dimensions := make([]cwtypes.Dimension, 0, len(dims)/2+1)
	dimensions = append(dimensions, cwtypes.Dimension{
		Name:  aws.String("Component"),
		Value: aws.String(m.component),
	})
	for i := 0; i+1 < len(dims); i += 2 {
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  aws.String(dims[i]),
			Value: aws.String(dims[i+1]),
		})
	}

	m.sink.add(cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: dimensions,
	})
}
