package shaper

import (
	"github.com/gmbyapa/krest/kafka"
)

// PartitionReplicaV1 is a replica in the v1 schema.
type PartitionReplicaV1 struct {
	Broker int32 `json:"broker"`
	Leader bool  `json:"leader"`
	InSync bool  `json:"in_sync"`
}

// GetPartitionResponseV1 is the v1 partition schema. Leader is the broker id of the leader replica, -1 when
// the partition has no leader.
type GetPartitionResponseV1 struct {
	Partition int32                `json:"partition"`
	Leader    int32                `json:"leader"`
	Replicas  []PartitionReplicaV1 `json:"replicas"`
}

type GetTopicResponseV1 struct {
	Name       string                   `json:"name"`
	Configs    map[string]string        `json:"configs"`
	Partitions []GetPartitionResponseV1 `json:"partitions"`
}

type v1Representation struct {
	jsonEncoder
}

func (v1Representation) Version() Version { return V1 }

func (v1Representation) Partition(p kafka.Partition) interface{} {
	return partitionV1(p)
}

func (v1Representation) Partitions(partitions []kafka.Partition) interface{} {
	return partitionsV1(partitions)
}

func (v1Representation) Topic(tp kafka.Topic) interface{} {
	configs := tp.Configs
	if configs == nil {
		configs = map[string]string{}
	}

	return GetTopicResponseV1{
		Name:       tp.Name,
		Configs:    configs,
		Partitions: partitionsV1(tp.Partitions),
	}
}

func (v1Representation) Topics(names []string) interface{} {
	if names == nil {
		return []string{}
	}

	return names
}

func partitionV1(p kafka.Partition) GetPartitionResponseV1 {
	replicas := make([]PartitionReplicaV1, 0, len(p.Replicas))
	for _, r := range p.Replicas {
		replicas = append(replicas, PartitionReplicaV1{
			Broker: r.Broker,
			Leader: r.Leader,
			InSync: r.InSync,
		})
	}

	return GetPartitionResponseV1{
		Partition: p.Index,
		Leader:    leaderBroker(p),
		Replicas:  replicas,
	}
}

func partitionsV1(partitions []kafka.Partition) []GetPartitionResponseV1 {
	list := make([]GetPartitionResponseV1, 0, len(partitions))
	for _, p := range partitions {
		list = append(list, partitionV1(p))
	}

	return list
}
