package franz

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/gmbyapa/krest/kafka"
	"github.com/gmbyapa/krest/pkg/errors"
	"github.com/tryfix/log"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

type adminOptions struct {
	Timeout  time.Duration
	ClientID string
	Logger   log.Logger

	requestor func(opts []kgo.Opt) (requestor, error)
}

func (opts *adminOptions) apply(options ...AdminOption) {
	opts.Timeout = 10 * time.Second
	opts.ClientID = `krest`
	opts.Logger = log.NewNoopLogger()
	opts.requestor = func(kOpts []kgo.Opt) (requestor, error) {
		return kgo.NewClient(kOpts...)
	}
	for _, opt := range options {
		opt(opts)
	}
}

type AdminOption func(*adminOptions)

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

// requestor issues raw protocol requests (implemented by *kgo.Client).
type requestor interface {
	kmsg.Requestor
	Close()
}

type kAdmin struct {
	client  requestor
	timeout time.Duration
	logger  log.Logger
}

// NewAdmin returns an Admin speaking the Kafka protocol directly through franz-go.
func NewAdmin(bootstrapServers []string, options ...AdminOption) (kafka.Admin, error) {
	opts := new(adminOptions)
	opts.apply(options...)

	client, err := opts.requestor([]kgo.Opt{
		kgo.SeedBrokers(bootstrapServers...),
		kgo.ClientID(opts.ClientID),
		kgo.RequestTimeoutOverhead(opts.Timeout),
		kgo.WithLogger(kgo.BasicLogger(io.Discard, kgo.LogLevelWarn, nil)),
	})
	if err != nil {
		return nil, errors.Wrap(err, `admin client failed`)
	}

	return &kAdmin{
		client:  client,
		timeout: opts.Timeout,
		logger:  opts.Logger.NewLog(log.Prefixed(`kafka-admin`)),
	}, nil
}

func classify(err error) error {
	if kerr.IsRetriable(err) {
		return kafka.Retriable(err)
	}

	return err
}

func (a *kAdmin) metadata(ctx context.Context, topics ...string) (*kmsg.MetadataResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := kmsg.NewPtrMetadataRequest()
	req.AllowAutoTopicCreation = false
	for _, topic := range topics {
		rt := kmsg.NewMetadataRequestTopic()
		rt.Topic = kmsg.StringPtr(topic)
		req.Topics = append(req.Topics, rt)
	}

	resp, err := req.RequestWith(ctx, a.client)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errors.Wrap(classify(err), `metadata request failed`)
	}

	return resp, nil
}

func (a *kAdmin) describe(ctx context.Context, topic string) (kmsg.MetadataResponseTopic, error) {
	resp, err := a.metadata(ctx, topic)
	if err != nil {
		return kmsg.MetadataResponseTopic{}, err
	}

	for _, tp := range resp.Topics {
		if tp.Topic == nil || *tp.Topic != topic {
			continue
		}

		if err := kerr.ErrorForCode(tp.ErrorCode); err != nil {
			if err == kerr.UnknownTopicOrPartition {
				return kmsg.MetadataResponseTopic{}, kafka.ErrUnknownTopicOrPartition
			}
			return kmsg.MetadataResponseTopic{}, errors.Wrapf(classify(err), `cannot describe topic [%s]`, topic)
		}

		return tp, nil
	}

	return kmsg.MetadataResponseTopic{}, kafka.ErrUnknownTopicOrPartition
}

func (a *kAdmin) ListTopics(ctx context.Context) ([]string, error) {
	resp, err := a.metadata(ctx)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(resp.Topics))
	for _, tp := range resp.Topics {
		if tp.Topic != nil && tp.ErrorCode == 0 {
			topics = append(topics, *tp.Topic)
		}
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
	tp, err := a.describe(ctx, topic)
	if err != nil {
		return nil, err
	}

	return partitions(topic, tp.Partitions), nil
}

func (a *kAdmin) TopicPartition(ctx context.Context, topic string, partition int32) (*kafka.Partition, error) {
	tp, err := a.describe(ctx, topic)
	if err != nil {
		return nil, err
	}

	return kafka.FilterPartition(partitions(topic, tp.Partitions), partition), nil
}

func (a *kAdmin) TopicConfigs(ctx context.Context, topic string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := kmsg.NewPtrDescribeConfigsRequest()
	res := kmsg.NewDescribeConfigsRequestResource()
	res.ResourceType = kmsg.ConfigResourceTypeTopic
	res.ResourceName = topic
	req.Resources = append(req.Resources, res)

	resp, err := req.RequestWith(ctx, a.client)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errors.Wrapf(classify(err), `DescribeConfigs failed for topic %s`, topic)
	}

	configs := map[string]string{}
	for _, r := range resp.Resources {
		if r.ResourceName != topic {
			continue
		}

		if err := kerr.ErrorForCode(r.ErrorCode); err != nil {
			if err == kerr.UnknownTopicOrPartition {
				return nil, kafka.ErrUnknownTopicOrPartition
			}
			return nil, errors.Wrapf(classify(err), `DescribeConfigs failed for topic %s`, topic)
		}

		for _, c := range r.Configs {
			if c.Value != nil {
				configs[c.Name] = *c.Value
			}
		}
	}

	return configs, nil
}

func (a *kAdmin) Close() error {
	a.client.Close()
	return nil
}

func partitions(topic string, meta []kmsg.MetadataResponseTopicPartition) []kafka.Partition {
	pts := make([]kafka.Partition, 0, len(meta))
	for _, pt := range meta {
		isr := make(map[int32]bool, len(pt.ISR))
		for _, b := range pt.ISR {
			isr[b] = true
		}

		replicas := make([]kafka.PartitionReplica, 0, len(pt.Replicas))
		for _, broker := range pt.Replicas {
			replicas = append(replicas, kafka.PartitionReplica{
				Broker: broker,
				Leader: broker == pt.Leader,
				InSync: isr[broker],
			})
		}

		pts = append(pts, kafka.Partition{
			Topic:    topic,
			Index:    pt.Partition,
			Replicas: replicas,
		})
	}

	sort.Slice(pts, func(i, j int) bool {
		return pts[i].Index < pts[j].Index
	})

	return pts
}
