package kafkago

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/gmbyapa/krest/kafka"
	"github.com/gmbyapa/krest/pkg/async"
	"github.com/gmbyapa/krest/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/protocol"
	meta "github.com/segmentio/kafka-go/protocol/metadata"
	"github.com/tryfix/log"
)

// first metadata version carrying AllowAutoTopicCreation
const metadataVersion = 4

type adminOptions struct {
	Timeout  time.Duration
	ClientID string
	Logger   log.Logger

	fetcher func(bootstrapServers []string, clientID string, timeout time.Duration) metadataFetcher
	client  func(transport *kafkago.Transport, bootstrapServers []string, timeout time.Duration) configClient
}

func (opts *adminOptions) apply(options ...AdminOption) {
	opts.Timeout = 10 * time.Second
	opts.ClientID = `krest`
	opts.Logger = log.NewNoopLogger()
	opts.fetcher = func(bootstrapServers []string, clientID string, timeout time.Duration) metadataFetcher {
		return &brokerConn{
			addrs:    bootstrapServers,
			clientID: clientID,
			timeout:  timeout,
			dialer:   &net.Dialer{Timeout: timeout},
		}
	}
	opts.client = func(transport *kafkago.Transport, bootstrapServers []string, timeout time.Duration) configClient {
		return &kafkago.Client{
			Addr:      kafkago.TCP(bootstrapServers...),
			Timeout:   timeout,
			Transport: transport,
		}
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

// metadataFetcher sends a single metadata request to the cluster.
type metadataFetcher interface {
	Metadata(ctx context.Context, req *meta.Request) (*meta.Response, error)
}

// configClient is the part of kafkago.Client the adaptor depends on.
type configClient interface {
	DescribeConfigs(ctx context.Context, req *kafkago.DescribeConfigsRequest) (*kafkago.DescribeConfigsResponse, error)
}

// brokerConn opens a new connection to a bootstrap broker for every metadata request. kafkago.Transport answers
// metadata requests from its own cluster view (refreshed every MetadataTTL), so it is only used for configs.
type brokerConn struct {
	addrs    []string
	clientID string
	timeout  time.Duration
	dialer   *net.Dialer
}

func (b *brokerConn) dial(ctx context.Context) (net.Conn, error) {
	var err error
	for _, addr := range b.addrs {
		var conn net.Conn
		conn, err = b.dialer.DialContext(ctx, `tcp`, addr)
		if err == nil {
			return conn, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, errors.Wrap(err, `no bootstrap server reachable`)
}

func (b *brokerConn) Metadata(ctx context.Context, req *meta.Request) (*meta.Response, error) {
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(b.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	var res protocol.Message
	err = async.Call(ctx, func() error {
		var err error
		res, err = protocol.RoundTrip(conn, metadataVersion, 1, b.clientID, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	resp, ok := res.(*meta.Response)
	if !ok {
		return nil, errors.Errorf(`unexpected metadata response %T`, res)
	}

	return resp, nil
}

type kAdmin struct {
	fetcher   metadataFetcher
	client    configClient
	transport *kafkago.Transport
	logger    log.Logger
}

// NewAdmin returns an Admin backed by the segmentio/kafka-go protocol packages. Connections are opened per request.
func NewAdmin(bootstrapServers []string, options ...AdminOption) (kafka.Admin, error) {
	if len(bootstrapServers) < 1 {
		return nil, errors.New(`empty bootstrap server list`)
	}

	opts := new(adminOptions)
	opts.apply(options...)

	transport := &kafkago.Transport{
		ClientID:    opts.ClientID,
		DialTimeout: opts.Timeout,
	}

	return &kAdmin{
		fetcher:   opts.fetcher(bootstrapServers, opts.ClientID, opts.Timeout),
		client:    opts.client(transport, bootstrapServers, opts.Timeout),
		transport: transport,
		logger:    opts.Logger.NewLog(log.Prefixed(`kafka-admin`)),
	}, nil
}

func classify(err error) error {
	var kErr kafkago.Error
	if errors.As(err, &kErr) && (kErr.Temporary() || kErr.Timeout()) {
		return kafka.Retriable(err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return kafka.Retriable(err)
	}

	return err
}

func (a *kAdmin) metadata(ctx context.Context, topics []string) (*meta.Response, error) {
	resp, err := a.fetcher.Metadata(ctx, &meta.Request{
		TopicNames: topics,
		// describing a missing topic must never create it
		AllowAutoTopicCreation: false,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(classify(err), `metadata request failed`)
	}

	return resp, nil
}

func (a *kAdmin) describe(ctx context.Context, topic string) (meta.ResponseTopic, error) {
	resp, err := a.metadata(ctx, []string{topic})
	if err != nil {
		return meta.ResponseTopic{}, err
	}

	for _, tp := range resp.Topics {
		if tp.Name != topic {
			continue
		}

		if tp.ErrorCode != 0 {
			kErr := kafkago.Error(tp.ErrorCode)
			if kErr == kafkago.UnknownTopicOrPartition {
				return meta.ResponseTopic{}, kafka.ErrUnknownTopicOrPartition
			}
			return meta.ResponseTopic{}, errors.Wrapf(classify(kErr), `cannot describe topic [%s]`, topic)
		}

		return tp, nil
	}

	return meta.ResponseTopic{}, kafka.ErrUnknownTopicOrPartition
}

func (a *kAdmin) ListTopics(ctx context.Context) ([]string, error) {
	resp, err := a.metadata(ctx, nil)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(resp.Topics))
	for _, tp := range resp.Topics {
		if tp.ErrorCode == 0 {
			topics = append(topics, tp.Name)
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

	return partitions(tp), nil
}

func (a *kAdmin) TopicPartition(ctx context.Context, topic string, partition int32) (*kafka.Partition, error) {
	tp, err := a.describe(ctx, topic)
	if err != nil {
		return nil, err
	}

	return kafka.FilterPartition(partitions(tp), partition), nil
}

func (a *kAdmin) TopicConfigs(ctx context.Context, topic string) (map[string]string, error) {
	resp, err := a.client.DescribeConfigs(ctx, &kafkago.DescribeConfigsRequest{
		Resources: []kafkago.DescribeConfigRequestResource{{
			ResourceType: kafkago.ResourceTypeTopic,
			ResourceName: topic,
		}},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(classify(err), `DescribeConfigs failed for topic %s`, topic)
	}

	configs := map[string]string{}
	for _, res := range resp.Resources {
		if res.ResourceName != topic {
			continue
		}

		if res.Error != nil {
			if errors.Is(res.Error, kafkago.UnknownTopicOrPartition) {
				return nil, kafka.ErrUnknownTopicOrPartition
			}
			return nil, errors.Wrapf(classify(res.Error), `DescribeConfigs failed for topic %s`, topic)
		}

		for _, entry := range res.ConfigEntries {
			configs[entry.ConfigName] = entry.ConfigValue
		}
	}

	return configs, nil
}

func (a *kAdmin) Close() error {
	a.transport.CloseIdleConnections()
	return nil
}

func partitions(tp meta.ResponseTopic) []kafka.Partition {
	pts := make([]kafka.Partition, 0, len(tp.Partitions))
	for _, pt := range tp.Partitions {
		isr := make(map[int32]bool, len(pt.IsrNodes))
		for _, id := range pt.IsrNodes {
			isr[id] = true
		}

		// LeaderID is -1 while the partition has no leader
		replicas := make([]kafka.PartitionReplica, 0, len(pt.ReplicaNodes))
		for _, id := range pt.ReplicaNodes {
			replicas = append(replicas, kafka.PartitionReplica{
				Broker: id,
				Leader: pt.LeaderID >= 0 && id == pt.LeaderID,
				InSync: isr[id],
			})
		}

		pts = append(pts, kafka.Partition{
			Topic:    tp.Name,
			Index:    pt.PartitionIndex,
			Replicas: replicas,
		})
	}

	sort.Slice(pts, func(i, j int) bool {
		return pts[i].Index < pts[j].Index
	})

	return pts
}
