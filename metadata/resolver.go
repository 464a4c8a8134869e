// Package metadata resolves topic and partition metadata from a live cluster.
//
// Every resolution is an existence check followed by a fetch. The two calls are independent reads of a cluster
// the gateway does not control, so a topic can disappear in between. Such a race is never retried and never
// hidden, it is reported as not found.
package metadata

import (
	"context"
	"errors"
	"sort"

	"github.com/gmbyapa/krest/kafka"
	"github.com/tryfix/log"
)

type Resolver struct {
	admin  kafka.Admin
	logger log.Logger
}

func NewResolver(admin kafka.Admin, logger log.Logger) *Resolver {
	return &Resolver{
		admin:  admin,
		logger: logger.NewLog(log.Prefixed(`metadata-resolver`)),
	}
}

// ListTopics returns the topic names sorted alphabetically.
func (r *Resolver) ListTopics(ctx context.Context) ([]string, error) {
	topics, err := r.admin.ListTopics(ctx)
	if err != nil {
		return nil, r.gatewayErr(ctx, `ListTopics`, ``, err)
	}

	sort.Strings(topics)

	return topics, nil
}

// ResolveTopic returns the topic configs and partitions.
func (r *Resolver) ResolveTopic(ctx context.Context, topic string) (kafka.Topic, error) {
	if err := r.mustExist(ctx, topic); err != nil {
		return kafka.Topic{}, err
	}

	configs, err := r.admin.TopicConfigs(ctx, topic)
	if err != nil {
		return kafka.Topic{}, r.topicFetchErr(ctx, `TopicConfigs`, topic, err)
	}

	partitions, err := r.admin.TopicPartitions(ctx, topic)
	if err != nil {
		return kafka.Topic{}, r.topicFetchErr(ctx, `TopicPartitions`, topic, err)
	}

	return kafka.Topic{
		Name:       topic,
		Configs:    configs,
		Partitions: partitions,
	}, nil
}

// ResolvePartitions returns every partition of the topic as read by a single Admin call.
func (r *Resolver) ResolvePartitions(ctx context.Context, topic string) ([]kafka.Partition, error) {
	if err := r.mustExist(ctx, topic); err != nil {
		return nil, err
	}

	partitions, err := r.admin.TopicPartitions(ctx, topic)
	if err != nil {
		return nil, r.topicFetchErr(ctx, `TopicPartitions`, topic, err)
	}

	return partitions, nil
}

// ResolvePartition returns a single partition. A topic that exists without the partition, or one that vanished
// after the existence check, results in a PartitionNotFoundError.
func (r *Resolver) ResolvePartition(ctx context.Context, topic string, partition int32) (kafka.Partition, error) {
	if err := r.mustExist(ctx, topic); err != nil {
		return kafka.Partition{}, err
	}

	pt, err := r.admin.TopicPartition(ctx, topic, partition)
	if err != nil {
		if errors.Is(err, kafka.ErrUnknownTopicOrPartition) {
			r.logger.DebugContext(ctx, `topic vanished after existence check`, topic, partition)
			return kafka.Partition{}, &PartitionNotFoundError{Topic: topic, Partition: partition}
		}

		return kafka.Partition{}, r.gatewayErr(ctx, `TopicPartition`, topic, err)
	}

	if pt == nil {
		return kafka.Partition{}, &PartitionNotFoundError{Topic: topic, Partition: partition}
	}

	return *pt, nil
}

func (r *Resolver) mustExist(ctx context.Context, topic string) error {
	exists, err := r.admin.TopicExists(ctx, topic)
	if err != nil {
		return r.gatewayErr(ctx, `TopicExists`, topic, err)
	}

	if !exists {
		return &TopicNotFoundError{Topic: topic}
	}

	return nil
}

func (r *Resolver) topicFetchErr(ctx context.Context, op, topic string, err error) error {
	if errors.Is(err, kafka.ErrUnknownTopicOrPartition) {
		r.logger.DebugContext(ctx, `topic vanished after existence check`, topic)
		return &TopicNotFoundError{Topic: topic}
	}

	return r.gatewayErr(ctx, op, topic, err)
}

// gatewayErr classifies an Admin failure. Cancellation of the caller is passed through untouched so it can be
// told apart from a failing cluster.
func (r *Resolver) gatewayErr(ctx context.Context, op, topic string, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}

	return &GatewayError{Op: op, Topic: topic, Err: err}
}
