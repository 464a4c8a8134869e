package mocks

import (
	"errors"
	"sort"
	"sync"

	"github.com/gmbyapa/krest/kafka"
)

// MockTopic is the mutable state of a topic in the mock cluster.
type MockTopic struct {
	Name       string
	Configs    map[string]string
	partitions map[int32][]kafka.PartitionReplica
}

// Topics is a concurrency safe in-memory topic registry.
type Topics struct {
	*sync.Mutex
	topics map[string]*MockTopic
}

func NewMockTopics() *Topics {
	return &Topics{
		topics: make(map[string]*MockTopic),
		Mutex:  new(sync.Mutex),
	}
}

func (td *Topics) AddTopic(topic kafka.Topic) error {
	td.Lock()
	defer td.Unlock()
	_, ok := td.topics[topic.Name]
	if ok {
		return errors.New(`topic already exists`)
	}

	tp := &MockTopic{
		Name:       topic.Name,
		Configs:    map[string]string{},
		partitions: map[int32][]kafka.PartitionReplica{},
	}

	for k, v := range topic.Configs {
		tp.Configs[k] = v
	}

	for _, pt := range topic.Partitions {
		if _, ok := tp.partitions[pt.Index]; ok {
			return errors.New(`duplicate partition index`)
		}
		tp.partitions[pt.Index] = append([]kafka.PartitionReplica(nil), pt.Replicas...)
	}

	td.topics[topic.Name] = tp

	return nil
}

func (td *Topics) RemoveTopic(name string) error {
	td.Lock()
	defer td.Unlock()
	_, ok := td.topics[name]
	if !ok {
		return errors.New(`topic does not exists`)
	}
	delete(td.topics, name)
	return nil
}

// SetReplicas replaces the replica list of a partition, adding the partition when it does not exist.
func (td *Topics) SetReplicas(topic string, partition int32, replicas []kafka.PartitionReplica) error {
	td.Lock()
	defer td.Unlock()

	tp, ok := td.topics[topic]
	if !ok {
		return kafka.ErrUnknownTopicOrPartition
	}

	tp.partitions[partition] = append([]kafka.PartitionReplica(nil), replicas...)

	return nil
}

func (td *Topics) Names() []string {
	td.Lock()
	defer td.Unlock()

	names := make([]string, 0, len(td.topics))
	for name := range td.topics {
		names = append(names, name)
	}

	return names
}

func (td *Topics) Exists(name string) bool {
	td.Lock()
	defer td.Unlock()

	_, ok := td.topics[name]
	return ok
}

// Snapshot returns a copy of the topic partitions sorted by index.
func (td *Topics) Snapshot(name string) ([]kafka.Partition, error) {
	td.Lock()
	defer td.Unlock()

	tp, ok := td.topics[name]
	if !ok {
		return nil, kafka.ErrUnknownTopicOrPartition
	}

	partitions := make([]kafka.Partition, 0, len(tp.partitions))
	for idx, replicas := range tp.partitions {
		partitions = append(partitions, kafka.Partition{
			Topic:    name,
			Index:    idx,
			Replicas: append([]kafka.PartitionReplica(nil), replicas...),
		})
	}

	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].Index < partitions[j].Index
	})

	return partitions, nil
}

func (td *Topics) Configs(name string) (map[string]string, error) {
	td.Lock()
	defer td.Unlock()

	tp, ok := td.topics[name]
	if !ok {
		return nil, kafka.ErrUnknownTopicOrPartition
	}

	configs := make(map[string]string, len(tp.Configs))
	for k, v := range tp.Configs {
		configs[k] = v
	}

	return configs, nil
}
