package shaper

import (
	"github.com/gmbyapa/krest/kafka"
)

const (
	kindPartition     = `KafkaPartition`
	kindPartitionList = `KafkaPartitionList`
	kindReplica       = `KafkaReplica`
	kindTopic         = `KafkaTopic`
	kindTopicList     = `KafkaTopicList`
	kindTopicConfig   = `KafkaTopicConfig`
)

type ReplicaDataV3 struct {
	Kind     string `json:"kind"`
	BrokerId int32  `json:"broker_id"`
	IsLeader bool   `json:"is_leader"`
	IsInSync bool   `json:"is_in_sync"`
}

// PartitionDataV3 is the v3 partition schema. LeaderId is null while the partition has no leader.
type PartitionDataV3 struct {
	Kind        string          `json:"kind"`
	TopicName   string          `json:"topic_name"`
	PartitionId int32           `json:"partition_id"`
	LeaderId    *int32          `json:"leader_id"`
	Replicas    []ReplicaDataV3 `json:"replicas"`
}

type PartitionListV3 struct {
	Kind string            `json:"kind"`
	Data []PartitionDataV3 `json:"data"`
}

type TopicConfigDataV3 struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type TopicDataV3 struct {
	Kind              string              `json:"kind"`
	TopicName         string              `json:"topic_name"`
	PartitionsCount   int                 `json:"partitions_count"`
	ReplicationFactor int                 `json:"replication_factor"`
	Configs           []TopicConfigDataV3 `json:"configs"`
	Partitions        PartitionListV3     `json:"partitions"`
}

type TopicNameDataV3 struct {
	Kind      string `json:"kind"`
	TopicName string `json:"topic_name"`
}

type TopicListV3 struct {
	Kind string            `json:"kind"`
	Data []TopicNameDataV3 `json:"data"`
}

type v3Representation struct {
	jsonEncoder
}

func (v3Representation) Version() Version { return V3 }

func (v3Representation) Partition(p kafka.Partition) interface{} {
	return partitionV3(p)
}

func (v3Representation) Partitions(partitions []kafka.Partition) interface{} {
	return partitionListV3(partitions)
}

func (v3Representation) Topic(tp kafka.Topic) interface{} {
	configs := make([]TopicConfigDataV3, 0, len(tp.Configs))
	for _, name := range sortedKeys(tp.Configs) {
		configs = append(configs, TopicConfigDataV3{
			Kind:  kindTopicConfig,
			Name:  name,
			Value: tp.Configs[name],
		})
	}

	var replicationFactor int
	for _, p := range tp.Partitions {
		if len(p.Replicas) > replicationFactor {
			replicationFactor = len(p.Replicas)
		}
	}

	return TopicDataV3{
		Kind:              kindTopic,
		TopicName:         tp.Name,
		PartitionsCount:   len(tp.Partitions),
		ReplicationFactor: replicationFactor,
		Configs:           configs,
		Partitions:        partitionListV3(tp.Partitions),
	}
}

func (v3Representation) Topics(names []string) interface{} {
	data := make([]TopicNameDataV3, 0, len(names))
	for _, name := range names {
		data = append(data, TopicNameDataV3{Kind: kindTopic, TopicName: name})
	}

	return TopicListV3{Kind: kindTopicList, Data: data}
}

func partitionV3(p kafka.Partition) PartitionDataV3 {
	replicas := make([]ReplicaDataV3, 0, len(p.Replicas))
	for _, r := range p.Replicas {
		replicas = append(replicas, ReplicaDataV3{
			Kind:     kindReplica,
			BrokerId: r.Broker,
			IsLeader: r.Leader,
			IsInSync: r.InSync,
		})
	}

	data := PartitionDataV3{
		Kind:        kindPartition,
		TopicName:   p.Topic,
		PartitionId: p.Index,
		Replicas:    replicas,
	}

	if leader, ok := p.Leader(); ok {
		id := leader.Broker
		data.LeaderId = &id
	}

	return data
}

func partitionListV3(partitions []kafka.Partition) PartitionListV3 {
	data := make([]PartitionDataV3, 0, len(partitions))
	for _, p := range partitions {
		data = append(data, partitionV3(p))
	}

	return PartitionListV3{Kind: kindPartitionList, Data: data}
}
