/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package sarama

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/gmbyapa/krest/kafka"
	"github.com/gmbyapa/krest/pkg/async"
	"github.com/gmbyapa/krest/pkg/errors"
	"github.com/tryfix/log"
)

type adminOptions struct {
	KafkaVersion sarama.KafkaVersion
	Timeout      time.Duration
	ClientID     string
	Logger       log.Logger

	newClusterAdmin func(addrs []string, conf *sarama.Config) (clusterAdmin, error)
}

func (opts *adminOptions) apply(options ...AdminOption) {
	opts.KafkaVersion = sarama.V2_4_0_0
	opts.Timeout = 20 * time.Second
	opts.ClientID = `krest`
	opts.Logger = log.NewNoopLogger()
	opts.newClusterAdmin = func(addrs []string, conf *sarama.Config) (clusterAdmin, error) {
		return sarama.NewClusterAdmin(addrs, conf)
	}
	for _, opt := range options {
		opt(opts)
	}
}

type AdminOption func(*adminOptions)

func WithKafkaVersion(version sarama.KafkaVersion) AdminOption {
	return func(options *adminOptions) {
		options.KafkaVersion = version
	}
}

func WithTimeout(timeout time.Duration) AdminOption {
	return func(options *adminOptions) {
		options.Timeout = timeout
	}
}

func WithClientID(id string) AdminOption {
	return func(options *adminOptions) {
		options.ClientID = id
	}
}

func WithLogger(logger log.Logger) AdminOption {
	return func(options *adminOptions) {
		options.Logger = logger
	}
}

// clusterAdmin is the part of sarama.ClusterAdmin the adaptor depends on.
type clusterAdmin interface {
	ListTopics() (map[string]sarama.TopicDetail, error)
	DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error)
	DescribeConfig(resource sarama.ConfigResource) ([]sarama.ConfigEntry, error)
	Close() error
}

type kAdmin struct {
	admin           clusterAdmin
	logger          log.Logger
	adminConfig     *sarama.Config
	bootstrapServer []string
	newClusterAdmin func(addrs []string, conf *sarama.Config) (clusterAdmin, error)
	mu              sync.RWMutex
}

func NewAdmin(bootstrapServer []string, options ...AdminOption) (kafka.Admin, error) {
	opts := new(adminOptions)
	opts.apply(options...)

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = opts.KafkaVersion
	saramaConfig.ClientID = opts.ClientID
	saramaConfig.Admin.Timeout = opts.Timeout
	// describing a missing topic must never create it
	saramaConfig.Metadata.AllowAutoTopicCreation = false

	admin, err := opts.newClusterAdmin(bootstrapServer, saramaConfig)
	if err != nil {
		return nil, errors.Wrap(err, `admin client failed`)
	}

	return &kAdmin{
		admin:           admin,
		logger:          opts.Logger.NewLog(log.Prefixed(`kafka-admin`)),
		adminConfig:     saramaConfig,
		bootstrapServer: bootstrapServer,
		newClusterAdmin: opts.newClusterAdmin,
	}, nil
}

// reconnect replaces failed with a new client. Concurrent requests failing on the same client reconnect once.
func (a *kAdmin) reconnect(failed clusterAdmin) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.admin != failed {
		return nil
	}

	admin, err := a.newClusterAdmin(a.bootstrapServer, a.adminConfig)
	if err != nil {
		return errors.Wrap(err, `admin client failed`)
	}
	a.admin = admin

	if err := failed.Close(); err != nil {
		a.logger.Warn(fmt.Sprintf(`stale admin client close failed due to %s`, err))
	}

	return nil
}

func (a *kAdmin) client() clusterAdmin {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.admin
}

// classify marks broker side and connection failures as retriable. Idle broker connections are closed after
// connections.max.idle.ms (https://github.com/Shopify/sarama/issues/2215) so a failed dial refreshes the client for
// the requests that follow, the failed request itself is not retried.
func (a *kAdmin) classify(ctx context.Context, client clusterAdmin, err error) error {
	if _, ok := err.(*net.OpError); ok {
		a.logger.WarnContext(ctx, fmt.Sprintf(`broker connection lost (%s), reconnecting`, err))
		if recErr := a.reconnect(client); recErr != nil {
			a.logger.ErrorContext(ctx, recErr)
		}
		return kafka.Retriable(err)
	}

	if kErr, ok := err.(sarama.KError); ok && retriable(kErr) {
		return kafka.Retriable(err)
	}

	if err == sarama.ErrOutOfBrokers || err == sarama.ErrClosedClient {
		return kafka.Retriable(err)
	}

	return err
}

func retriable(err sarama.KError) bool {
	switch err {
	case sarama.ErrLeaderNotAvailable,
		sarama.ErrNotLeaderForPartition,
		sarama.ErrRequestTimedOut,
		sarama.ErrNetworkException,
		sarama.ErrNotController,
		sarama.ErrNotEnoughReplicas,
		sarama.ErrBrokerNotAvailable:
		return true
	}

	return false
}

func (a *kAdmin) describe(ctx context.Context, topic string) (*sarama.TopicMetadata, error) {
	client := a.client()
	var meta []*sarama.TopicMetadata
	err := async.Call(ctx, func() error {
		var err error
		meta, err = client.DescribeTopics([]string{topic})
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(a.classify(ctx, client, err), `cannot describe topic [%s]`, topic)
	}

	for _, tp := range meta {
		if tp.Name != topic {
			continue
		}

		switch tp.Err {
		case sarama.ErrNoError:
			return tp, nil
		case sarama.ErrUnknownTopicOrPartition:
			return nil, kafka.ErrUnknownTopicOrPartition
		default:
			return nil, errors.Wrapf(a.classify(ctx, client, tp.Err), `cannot describe topic [%s]`, topic)
		}
	}

	return nil, kafka.ErrUnknownTopicOrPartition
}

func (a *kAdmin) ListTopics(ctx context.Context) ([]string, error) {
	client := a.client()
	var topics map[string]sarama.TopicDetail
	err := async.Call(ctx, func() error {
		var err error
		topics, err = client.ListTopics()
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(a.classify(ctx, client, err), `cannot list topics`)
	}

	tpList := make([]string, 0, len(topics))
	for tp := range topics {
		tpList = append(tpList, tp)
	}

	return tpList, nil
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
	client := a.client()
	var entries []sarama.ConfigEntry
	err := async.Call(ctx, func() error {
		var err error
		entries, err = client.DescribeConfig(sarama.ConfigResource{
			Type: sarama.TopicResource,
			Name: topic,
		})
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, sarama.ErrUnknownTopicOrPartition) {
			return nil, kafka.ErrUnknownTopicOrPartition
		}

		return nil, errors.Wrapf(a.classify(ctx, client, err), `DescribeConfig failed for topic %s`, topic)
	}

	configs := make(map[string]string, len(entries))
	for _, entry := range entries {
		configs[entry.Name] = entry.Value
	}

	return configs, nil
}

func (a *kAdmin) Close() error {
	if err := a.client().Close(); err != nil {
		a.logger.Warn(fmt.Sprintf(`kafkaAdmin cannot close broker : %+v`, err))
		return err
	}

	return nil
}

func partitions(meta *sarama.TopicMetadata) []kafka.Partition {
	pts := make([]kafka.Partition, 0, len(meta.Partitions))
	for _, pt := range meta.Partitions {
		replicas := make([]kafka.PartitionReplica, 0, len(pt.Replicas))
		for _, broker := range pt.Replicas {
			replicas = append(replicas, kafka.PartitionReplica{
				Broker: broker,
				Leader: broker == pt.Leader,
				InSync: contains(pt.Isr, broker),
			})
		}

		pts = append(pts, kafka.Partition{
			Topic:    meta.Name,
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
