/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package mocks

import (
	"context"
	"sync"

	"github.com/gmbyapa/krest/kafka"
)

type Operation string

const (
	OpListTopics      Operation = `ListTopics`
	OpTopicExists     Operation = `TopicExists`
	OpTopicPartitions Operation = `TopicPartitions`
	OpTopicPartition  Operation = `TopicPartition`
	OpTopicConfigs    Operation = `TopicConfigs`
)

// Call is a recorded Admin call.
type Call struct {
	Op        Operation
	Topic     string
	Partition int32
}

// MockKafkaAdmin is an in-memory kafka.Admin. Every call is recorded, errors can be injected per operation and
// hooks can mutate the cluster while a call is in flight(eg: delete the topic between two calls).
type MockKafkaAdmin struct {
	Topics *Topics

	mu    sync.Mutex
	calls []Call
	errs  map[Operation]error
	hooks map[Operation]func(ctx context.Context)
}

func NewMockAdmin() *MockKafkaAdmin {
	return &MockKafkaAdmin{
		Topics: NewMockTopics(),
		errs:   map[Operation]error{},
		hooks:  map[Operation]func(ctx context.Context){},
	}
}

func NewMockAdminWithTopics(tps ...kafka.Topic) *MockKafkaAdmin {
	admin := NewMockAdmin()
	for _, tp := range tps {
		if err := admin.Topics.AddTopic(tp); err != nil {
			panic(err)
		}
	}

	return admin
}

// FailWith makes every following call of op fail with err. A nil err clears the failure.
func (m *MockKafkaAdmin) FailWith(op Operation, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// OnCall registers a hook which runs before op reads the cluster state.
func (m *MockKafkaAdmin) OnCall(op Operation, hook func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks[op] = hook
}

// Calls returns the recorded calls in invocation order.
func (m *MockKafkaAdmin) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Call(nil), m.calls...)
}

// Reset clears the recorded calls, injected errors and hooks.
func (m *MockKafkaAdmin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
	m.errs = map[Operation]error{}
	m.hooks = map[Operation]func(ctx context.Context){}
}

func (m *MockKafkaAdmin) record(ctx context.Context, call Call) error {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	hook := m.hooks[call.Op]
	err := m.errs[call.Op]
	m.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}

	if err != nil {
		return err
	}

	return ctx.Err()
}

func (m *MockKafkaAdmin) ListTopics(ctx context.Context) ([]string, error) {
	if err := m.record(ctx, Call{Op: OpListTopics}); err != nil {
		return nil, err
	}

	return m.Topics.Names(), nil
}

func (m *MockKafkaAdmin) TopicExists(ctx context.Context, topic string) (bool, error) {
	if err := m.record(ctx, Call{Op: OpTopicExists, Topic: topic}); err != nil {
		return false, err
	}

	return m.Topics.Exists(topic), nil
}

func (m *MockKafkaAdmin) TopicPartitions(ctx context.Context, topic string) ([]kafka.Partition, error) {
	if err := m.record(ctx, Call{Op: OpTopicPartitions, Topic: topic}); err != nil {
		return nil, err
	}

	return m.Topics.Snapshot(topic)
}

func (m *MockKafkaAdmin) TopicPartition(ctx context.Context, topic string, partition int32) (*kafka.Partition, error) {
	if err := m.record(ctx, Call{Op: OpTopicPartition, Topic: topic, Partition: partition}); err != nil {
		return nil, err
	}

	partitions, err := m.Topics.Snapshot(topic)
	if err != nil {
		return nil, err
	}

	return kafka.FilterPartition(partitions, partition), nil
}

func (m *MockKafkaAdmin) TopicConfigs(ctx context.Context, topic string) (map[string]string, error) {
	if err := m.record(ctx, Call{Op: OpTopicConfigs, Topic: topic}); err != nil {
		return nil, err
	}

	return m.Topics.Configs(topic)
}

func (m *MockKafkaAdmin) Close() error { return nil }
