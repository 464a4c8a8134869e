/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package kafka

import (
	"context"
	"errors"
)

// ErrUnknownTopicOrPartition is returned by Admin implementations when the cluster reports a topic as unknown
// while fetching its details. This happens when the topic is deleted between an existence check and a fetch.
var ErrUnknownTopicOrPartition = errors.New(`unknown topic or partition`)

// PartitionReplica is one broker's copy of a partition.
type PartitionReplica struct {
	Broker int32
	Leader bool
	InSync bool
}

// Partition is a point-in-time read of a topic partition and its replicas.
// Replicas are kept in the order the cluster reported them.
type Partition struct {
	Topic    string
	Index    int32
	Replicas []PartitionReplica
}

// Leader returns the first replica flagged as the leader. During leader elections a partition can report zero
// or several leaders, callers must not assume exactly one.
func (p Partition) Leader() (PartitionReplica, bool) {
	for _, r := range p.Replicas {
		if r.Leader {
			return r, true
		}
	}

	return PartitionReplica{}, false
}

type Topic struct {
	Name       string
	Configs    map[string]string
	Partitions []Partition
}

// Admin is the read only capability over a kafka cluster the gateway depends on. Every call reflects the
// current cluster state, implementations must not cache.
type Admin interface {
	// ListTopics returns the names of all the topics visible to the client.
	ListTopics(ctx context.Context) ([]string, error)
	TopicExists(ctx context.Context, topic string) (bool, error)
	// TopicPartitions returns all the partitions of the topic sorted by partition index.
	TopicPartitions(ctx context.Context, topic string) ([]Partition, error)
	// TopicPartition returns the partition or nil when the topic has no such partition.
	TopicPartition(ctx context.Context, topic string, partition int32) (*Partition, error)
	TopicConfigs(ctx context.Context, topic string) (map[string]string, error)
	Close() error
}

// FilterPartition picks the partition with the given index from a single topic read.
func FilterPartition(partitions []Partition, index int32) *Partition {
	for i := range partitions {
		if partitions[i].Index == index {
			pt := partitions[i]
			return &pt
		}
	}

	return nil
}
