// Package publisher announces completed runs on a Redis stream.
package publisher

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/fortuna/vetoscope/internal/aggregate"
)

// DefaultStream receives one entry per completed run.
const DefaultStream = "vetoscope.results"

// RedisStreamPublisher publishes results to a Redis stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher creates a publisher from an existing client. An
// empty stream uses DefaultStream.
func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamPublisher{
		client: client,
		stream: stream,
		maxLen: 10000,
	}
}

// Stream returns the stream name.
func (p *RedisStreamPublisher) Stream() string {
	return p.stream
}

// PublishResult appends the result of runID to the stream.
func (p *RedisStreamPublisher) PublishResult(ctx context.Context, runID string, result *aggregate.Result) error {
	values, err := EntryValues(runID, result, time.Now())
	if err != nil {
		return err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return errors.Wrapf(err, "xadd %s", p.stream)
	}
	return nil
}

// EntryValues builds the stream fields: run_id, team, data and timestamp.
func EntryValues(runID string, result *aggregate.Result, now time.Time) (map[string]interface{}, error) {
	if result == nil {
		return nil, errors.New("nil result")
	}
	data, err := sonic.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "encode result")
	}
	return map[string]interface{}{
		"run_id":    runID,
		"team":      result.TeamName,
		"data":      string(data),
		"timestamp": now.Unix(),
	}, nil
}
