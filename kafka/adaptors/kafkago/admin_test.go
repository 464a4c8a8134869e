package kafkago

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gmbyapa/krest/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/protocol"
	meta "github.com/segmentio/kafka-go/protocol/metadata"
)

func topic1Partitions() []meta.ResponsePartition {
	return []meta.ResponsePartition{
		{PartitionIndex: 1, LeaderID: 1, ReplicaNodes: []int32{0, 1}, IsrNodes: []int32{0, 1}},
		{PartitionIndex: 0, LeaderID: 0, ReplicaNodes: []int32{0, 1}, IsrNodes: []int32{0}},
		{PartitionIndex: 2, LeaderID: -1, ReplicaNodes: []int32{0, 1}},
	}
}

// cluster answers metadata requests from its current topic set.
type cluster struct {
	mu       sync.Mutex
	topics   map[string][]meta.ResponsePartition
	requests []*meta.Request
}

func newCluster() *cluster {
	return &cluster{topics: map[string][]meta.ResponsePartition{`topic1`: topic1Partitions()}}
}

func (c *cluster) setTopic(name string, pts []meta.ResponsePartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pts == nil {
		delete(c.topics, name)
		return
	}
	c.topics[name] = pts
}

func (c *cluster) respond(req *meta.Request) *meta.Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	resp := &meta.Response{Brokers: []meta.ResponseBroker{{NodeID: 0, Host: `127.0.0.1`, Port: 9092}}}
	names := req.TopicNames
	if names == nil {
		for name := range c.topics {
			names = append(names, name)
		}
	}

	for _, name := range names {
		pts, ok := c.topics[name]
		if !ok {
			resp.Topics = append(resp.Topics, meta.ResponseTopic{Name: name, ErrorCode: int16(kafkago.UnknownTopicOrPartition)})
			continue
		}
		resp.Topics = append(resp.Topics, meta.ResponseTopic{Name: name, Partitions: pts})
	}

	return resp
}

type fakeFetcher struct {
	*cluster
	err error
}

func (f *fakeFetcher) Metadata(_ context.Context, req *meta.Request) (*meta.Response, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.respond(req), nil
}

type fakeConfigClient struct {
	configs map[string][]kafkago.DescribeConfigResponseConfigEntry
}

func (f *fakeConfigClient) DescribeConfigs(_ context.Context, req *kafkago.DescribeConfigsRequest) (*kafkago.DescribeConfigsResponse, error) {
	resp := &kafkago.DescribeConfigsResponse{}
	for _, res := range req.Resources {
		rr := kafkago.DescribeConfigResponseResource{ResourceName: res.ResourceName}
		entries, ok := f.configs[res.ResourceName]
		if !ok {
			rr.Error = kafkago.UnknownTopicOrPartition
		}
		rr.ConfigEntries = entries
		resp.Resources = append(resp.Resources, rr)
	}

	return resp, nil
}

func newTestAdmin(t *testing.T, fetcher metadataFetcher) kafka.Admin {
	t.Helper()
	admin, err := NewAdmin([]string{`localhost:9092`}, func(opts *adminOptions) {
		opts.fetcher = func([]string, string, time.Duration) metadataFetcher {
			return fetcher
		}
		opts.client = func(*kafkago.Transport, []string, time.Duration) configClient {
			return &fakeConfigClient{configs: map[string][]kafkago.DescribeConfigResponseConfigEntry{
				`topic1`: {{ConfigName: `cleanup.policy`, ConfigValue: `compact`}},
			}}
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	return admin
}

// broker serves the kafka wire protocol on a local listener, one request per connection is enough for the admin.
type broker struct {
	*cluster
	lis   net.Listener
	stall chan struct{}

	mu    sync.Mutex
	conns int
}

// newBroker starts a broker, requests are left unanswered until stall is closed when stall is not nil.
func newBroker(t *testing.T, c *cluster, stall chan struct{}) *broker {
	t.Helper()
	lis, err := net.Listen(`tcp`, `127.0.0.1:0`)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = lis.Close() })

	b := &broker{cluster: c, lis: lis, stall: stall}
	go b.serve()

	return b
}

func (b *broker) serve() {
	for {
		conn, err := b.lis.Accept()
		if err != nil {
			return
		}

		b.mu.Lock()
		b.conns++
		b.mu.Unlock()

		go b.handle(conn)
	}
}

func (b *broker) handle(conn net.Conn) {
	defer conn.Close()
	for {
		version, correlationID, _, msg, err := protocol.ReadRequest(conn)
		if err != nil {
			return
		}

		req, ok := msg.(*meta.Request)
		if !ok {
			return
		}

		if b.stall != nil {
			<-b.stall
			return
		}

		if err := protocol.WriteResponse(conn, version, correlationID, b.respond(req)); err != nil {
			return
		}
	}
}

func (b *broker) connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.conns
}

func TestNewAdmin_EmptyBootstrapServers(t *testing.T) {
	if _, err := NewAdmin(nil); err == nil {
		t.Error(`expected an error`)
	}
}

func TestAdmin_TopicPartitions(t *testing.T) {
	got, err := newTestAdmin(t, &fakeFetcher{cluster: newCluster()}).TopicPartitions(context.Background(), `topic1`)
	if err != nil {
		t.Fatal(err)
	}

	want := []kafka.Partition{
		{Topic: `topic1`, Index: 0, Replicas: []kafka.PartitionReplica{
			{Broker: 0, Leader: true, InSync: true},
			{Broker: 1, Leader: false, InSync: false},
		}},
		{Topic: `topic1`, Index: 1, Replicas: []kafka.PartitionReplica{
			{Broker: 0, Leader: false, InSync: true},
			{Broker: 1, Leader: true, InSync: true},
		}},
		{Topic: `topic1`, Index: 2, Replicas: []kafka.PartitionReplica{
			{Broker: 0, Leader: false, InSync: false},
			{Broker: 1, Leader: false, InSync: false},
		}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopicPartitions() = %+v, want %+v", got, want)
	}
}

func TestAdmin_UnknownTopic(t *testing.T) {
	admin := newTestAdmin(t, &fakeFetcher{cluster: newCluster()})
	exists, err := admin.TopicExists(context.Background(), `unknown`)
	if err != nil || exists {
		t.Errorf("TopicExists() = %v, %v want false, nil", exists, err)
	}

	if _, err := admin.TopicPartition(context.Background(), `unknown`, 0); !errors.Is(err, kafka.ErrUnknownTopicOrPartition) {
		t.Errorf("TopicPartition() error = %v", err)
	}

	if _, err := admin.TopicConfigs(context.Background(), `unknown`); !errors.Is(err, kafka.ErrUnknownTopicOrPartition) {
		t.Errorf("TopicConfigs() error = %v", err)
	}
}

func TestAdmin_TopicConfigsAndList(t *testing.T) {
	admin := newTestAdmin(t, &fakeFetcher{cluster: newCluster()})
	configs, err := admin.TopicConfigs(context.Background(), `topic1`)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(configs, map[string]string{`cleanup.policy`: `compact`}) {
		t.Errorf("TopicConfigs() = %v", configs)
	}

	topics, err := admin.ListTopics(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(topics, []string{`topic1`}) {
		t.Errorf("ListTopics() = %v", topics)
	}
}

func TestAdmin_Retriable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{name: `leader_not_available`, err: kafkago.LeaderNotAvailable, retriable: true},
		{name: `request_timed_out`, err: kafkago.RequestTimedOut, retriable: true},
		{name: `connection_refused`, err: &net.OpError{Op: `dial`, Net: `tcp`, Err: errors.New(`connection refused`)}, retriable: true},
		{name: `authorization`, err: kafkago.ClusterAuthorizationFailed, retriable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestAdmin(t, &fakeFetcher{cluster: newCluster(), err: tt.err}).TopicExists(context.Background(), `topic1`)
			if err == nil {
				t.Fatal(`expected an error`)
			}

			if kafka.IsRetriable(err) != tt.retriable {
				t.Errorf("IsRetriable(%v) = %v, want %v", err, !tt.retriable, tt.retriable)
			}
		})
	}
}

func TestAdmin_ReadsCurrentClusterState(t *testing.T) {
	c := newCluster()
	b := newBroker(t, c, nil)
	admin, err := NewAdmin([]string{b.lis.Addr().String()}, WithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer admin.Close()

	ctx := context.Background()
	exists, err := admin.TopicExists(ctx, `topic1`)
	if err != nil || !exists {
		t.Fatalf("TopicExists() = %v, %v want true, nil", exists, err)
	}

	c.setTopic(`topic1`, nil)
	exists, err = admin.TopicExists(ctx, `topic1`)
	if err != nil || exists {
		t.Errorf("TopicExists() after delete = %v, %v want false, nil", exists, err)
	}

	if _, err := admin.TopicPartitions(ctx, `topic1`); !errors.Is(err, kafka.ErrUnknownTopicOrPartition) {
		t.Errorf("TopicPartitions() after delete error = %v", err)
	}

	c.setTopic(`topic2`, []meta.ResponsePartition{{PartitionIndex: 0, LeaderID: 0, ReplicaNodes: []int32{0}, IsrNodes: []int32{0}}})
	pt, err := admin.TopicPartition(ctx, `topic2`, 0)
	if err != nil {
		t.Fatal(err)
	}

	want := &kafka.Partition{Topic: `topic2`, Index: 0, Replicas: []kafka.PartitionReplica{{Broker: 0, Leader: true, InSync: true}}}
	if !reflect.DeepEqual(pt, want) {
		t.Errorf("TopicPartition() after create = %+v, want %+v", pt, want)
	}

	if got := b.connections(); got != 4 {
		t.Errorf("connections = %d, want one per request (4)", got)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, req := range c.requests {
		if req.AllowAutoTopicCreation {
			t.Errorf("request %+v allows topic auto creation", req)
		}
	}
}

func TestAdmin_UnreachableBroker(t *testing.T) {
	lis, err := net.Listen(`tcp`, `127.0.0.1:0`)
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	admin, err := NewAdmin([]string{addr}, WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.TopicExists(context.Background(), `topic1`); !kafka.IsRetriable(err) {
		t.Errorf("error = %v, want retriable", err)
	}
}

func TestAdmin_Cancellation(t *testing.T) {
	stall := make(chan struct{})
	defer close(stall)
	b := newBroker(t, newCluster(), stall)

	admin, err := NewAdmin([]string{b.lis.Addr().String()}, WithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := admin.TopicPartitions(ctx, `topic1`); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want %v", err, context.DeadlineExceeded)
	}
}
