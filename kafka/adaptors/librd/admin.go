/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package librd

import (
	"context"
	"sort"
	"time"

	librdKafka "github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/gmbyapa/krest/kafka"
	"github.com/gmbyapa/krest/pkg/async"
	"github.com/gmbyapa/krest/pkg/errors"
	"github.com/tryfix/log"
)

type adminOptions struct {
	Timeout  time.Duration
	ClientID string
	Librd    librdKafka.ConfigMap
	Logger   log.Logger

	newAdminClient func(conf *librdKafka.ConfigMap) (adminClient, error)
}

func (opts *adminOptions) apply(options ...AdminOption) {
	opts.Logger = log.NewNoopLogger()
	opts.Timeout = 10 * time.Second
	opts.ClientID = `krest`
	opts.newAdminClient = func(conf *librdKafka.ConfigMap) (adminClient, error) {
		return librdKafka.NewAdminClient(conf)
	}
	for _, opt := range options {
		opt(opts)
	}
}

type AdminOption func(*adminOptions)

func WithLogger(logger log.Logger) AdminOption {
	return func(options *adminOptions) {
		options.Logger = logger
	}
}

func WithTimeout(duration time.Duration) AdminOption {
	return func(options *adminOptions) {
		options.Timeout = duration
	}
}

func WithClientID(id string) AdminOption {
	return func(options *adminOptions) {
		options.ClientID = id
	}
}

// WithConfigs overrides librdkafka properties of the admin client (eg: security.protocol).
func WithConfigs(configs librdKafka.ConfigMap) AdminOption {
	return func(options *adminOptions) {
		options.Librd = configs
	}
}

// adminClient is the part of librdKafka.AdminClient the adaptor depends on.
type adminClient interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*librdKafka.Metadata, error)
	DescribeConfigs(ctx context.Context, resources []librdKafka.ConfigResource,
		options ...librdKafka.DescribeConfigsAdminOption) ([]librdKafka.ConfigResourceResult, error)
	Close()
}

type kAdmin struct {
	admin   adminClient
	logger  log.Logger
	timeout time.Duration
}

func NewAdmin(bootstrapServer []string, options ...AdminOption) (kafka.Admin, error) {
	opts := new(adminOptions)
	opts.apply(options...)

	admin, err := opts.newAdminClient(adminConfigMap(bootstrapServer, opts.ClientID, opts.Librd))
	if err != nil {
		return nil, errors.Wrap(err, `admin client failed`)
	}

	return &kAdmin{
		admin:   admin,
		logger:  opts.Logger.NewLog(log.Prefixed(`kafka-admin`)),
		timeout: opts.Timeout,
	}, nil
}

func classify(err error) error {
	var kErr librdKafka.Error
	if errors.As(err, &kErr) && (kErr.IsRetriable() ||
		kErr.Code() == librdKafka.ErrTimedOut ||
		kErr.Code() == librdKafka.ErrTransport ||
		kErr.Code() == librdKafka.ErrAllBrokersDown ||
		kErr.Code() == librdKafka.ErrLeaderNotAvailable) {
		return kafka.Retriable(err)
	}

	return err
}

func (a *kAdmin) metadata(ctx context.Context, topic *string) (*librdKafka.Metadata, error) {
	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	var meta *librdKafka.Metadata
	err := async.Call(ctx, func() error {
		var err error
		meta, err = a.admin.GetMetadata(topic, topic == nil, int(timeout.Milliseconds()))
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(classify(err), `cannot get metadata`)
	}

	return meta, nil
}

func (a *kAdmin) describe(ctx context.Context, topic string) (librdKafka.TopicMetadata, error) {
	meta, err := a.metadata(ctx, &topic)
	if err != nil {
		return librdKafka.TopicMetadata{}, err
	}

	tp, ok := meta.Topics[topic]
	if !ok {
		return librdKafka.TopicMetadata{}, kafka.ErrUnknownTopicOrPartition
	}

	switch tp.Error.Code() {
	case librdKafka.ErrNoError:
		return tp, nil
	case librdKafka.ErrUnknownTopicOrPart, librdKafka.ErrUnknownTopic:
		return librdKafka.TopicMetadata{}, kafka.ErrUnknownTopicOrPartition
	default:
		return librdKafka.TopicMetadata{}, errors.Wrapf(classify(tp.Error), `cannot describe topic [%s]`, topic)
	}
}

func (a *kAdmin) ListTopics(ctx context.Context) ([]string, error) {
	meta, err := a.metadata(ctx, nil)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(meta.Topics))
	for _, tp := range meta.Topics {
		topics = append(topics, tp.Topic)
	}

	return topics, nil
}

func (a *kAdmin) TopicExists(ctx context.Context, topic string) (bool, error) {
	_, err := a.describe(ctx, topic)
	if errors.Is(err, kafka.ErrUnknownTopicOrPartition) {
		return false, nil
	}

	return err == nil, err
}

func (a *kAdmin) TopicPartitions(ctx context.Context, topic string) ([]kafka.Partition, error) {
	meta, err := a.describe(ctx, topic)
	if err != nil {
		return nil, err
	}

	return partitions(meta), nil
}

func (a *kAdmin) TopicPartition(ctx context.Context, topic string, partition int32) (*kafka.Partition, error) {
	meta, err := a.describe(ctx, topic)
	if err != nil {
		return nil, err
	}

	return kafka.FilterPartition(partitions(meta), partition), nil
}

func (a *kAdmin) TopicConfigs(ctx context.Context, topic string) (map[string]string, error) {
	results, err := a.admin.DescribeConfigs(ctx, []librdKafka.ConfigResource{{
		Type: librdKafka.ResourceTopic,
		Name: topic,
	}}, librdKafka.SetAdminRequestTimeout(a.timeout))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(classify(err), `DescribeConfigs failed for topic %s`, topic)
	}

	configs := map[string]string{}
	for _, res := range results {
		if res.Name != topic {
			continue
		}

		switch res.Error.Code() {
		case librdKafka.ErrNoError:
		case librdKafka.ErrUnknownTopicOrPart, librdKafka.ErrUnknownTopic:
			return nil, kafka.ErrUnknownTopicOrPartition
		default:
			return nil, errors.Wrapf(classify(res.Error), `DescribeConfigs failed for topic %s`, topic)
		}

		for name, entry := range res.Config {
			configs[name] = entry.Value
		}
	}

	return configs, nil
}

func (a *kAdmin) Close() error {
	a.admin.Close()
	return nil
}

func partitions(meta librdKafka.TopicMetadata) []kafka.Partition {
	pts := make([]kafka.Partition, 0, len(meta.Partitions))
	for _, pt := range meta.Partitions {
		replicas := make([]kafka.PartitionReplica, 0, len(pt.Replicas))
		for _, broker := range pt.Replicas {
			replicas = append(replicas, kafka.PartitionReplica{
				Broker: broker,
				Leader: broker == pt.Leader,
				InSync: contains(pt.Isrs, broker),
			})
		}

		pts = append(pts, kafka.Partition{
			Topic:    meta.Topic,
			Index:    pt.ID,
			Replicas: replicas,
		})
	}

	sort.Slice(pts, func(i, j int) bool {
		return pts[i].Index < pts[j].Index
	})

	return pts
}

func contains(brokers []int32, broker int32) bool {
	for _, b := range brokers {
		if b == broker {
			return true
		}
	}

	return false
}
