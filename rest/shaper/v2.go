package shaper

import (
	"github.com/gmbyapa/krest/kafka"
)

// The v2 schema is wire compatible with v1 today. It is kept as its own set of types so the two versions can
// evolve independently.

type PartitionReplicaV2 struct {
	Broker int32 `json:"broker"`
	Leader bool  `json:"leader"`
	InSync bool  `json:"in_sync"`
}

type GetPartitionResponseV2 struct {
	Partition int32                `json:"partition"`
	Leader    int32                `json:"leader"`
	Replicas  []PartitionReplicaV2 `json:"replicas"`
}

type GetTopicResponseV2 struct {
	Name       string                   `json:"name"`
	Configs    map[string]string        `json:"configs"`
	Partitions []GetPartitionResponseV2 `json:"partitions"`
}

type v2Representation struct {
	jsonEncoder
}

func (v2Representation) Version() Version { return V2 }

func (v2Representation) Partition(p kafka.Partition) interface{} {
	return partitionV2(p)
}

func (v2Representation) Partitions(partitions []kafka.Partition) interface{} {
	list := make([]GetPartitionResponseV2, 0, len(partitions))
	for _, p := range partitions {
		list = append(list, partitionV2(p))
	}

	return list
}

func (r v2Representation) Topic(tp kafka.Topic) interface{} {
	configs := tp.Configs
	if configs == nil {
		configs = map[string]string{}
	}

	return GetTopicResponseV2{
		Name:       tp.Name,
		Configs:    configs,
		Partitions: r.Partitions(tp.Partitions).([]GetPartitionResponseV2),
	}
}

func (v2Representation) Topics(names []string) interface{} {
	if names == nil {
		return []string{}
	}

	return names
}

func partitionV2(p kafka.Partition) GetPartitionResponseV2 {
	replicas := make([]PartitionReplicaV2, len(p.Replicas))
	for i, r := range p.Replicas {
		replicas[i] = PartitionReplicaV2{
			Broker: r.Broker,
			Leader: r.Leader,
			InSync: r.InSync,
		}
	}

	return GetPartitionResponseV2{
		Partition: p.Index,
		Leader:    leaderBroker(p),
		Replicas:  replicas,
	}
}
