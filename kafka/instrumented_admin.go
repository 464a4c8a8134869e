/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package kafka

import (
	"context"
	"time"

	"github.com/tryfix/metrics"
)

const (
	outcomeSuccess = `success`
	outcomeAbsent  = `absent`
	outcomeError   = `error`
)

// InstrumentedAdmin reports the latency and the outcome of every Admin call.
type InstrumentedAdmin struct {
	admin   Admin
	latency metrics.Observer
}

func NewInstrumentedAdmin(admin Admin, reporter metrics.Reporter) *InstrumentedAdmin {
	return &InstrumentedAdmin{
		admin: admin,
		latency: reporter.Observer(metrics.MetricConf{
			Path:   `admin_call_latency_microseconds`,
			Labels: []string{`operation`, `outcome`},
		}),
	}
}

func (a *InstrumentedAdmin) observe(operation string, begin time.Time, outcome string) {
	a.latency.Observe(float64(time.Since(begin).Microseconds()), map[string]string{
		`operation`: operation,
		`outcome`:   outcome,
	})
}

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}

	return outcomeSuccess
}

func (a *InstrumentedAdmin) ListTopics(ctx context.Context) ([]string, error) {
	begin := time.Now()
	topics, err := a.admin.ListTopics(ctx)
	a.observe(`list_topics`, begin, outcome(err))

	return topics, err
}

func (a *InstrumentedAdmin) TopicExists(ctx context.Context, topic string) (bool, error) {
	begin := time.Now()
	exists, err := a.admin.TopicExists(ctx, topic)
	out := outcome(err)
	if err == nil && !exists {
		out = outcomeAbsent
	}
	a.observe(`topic_exists`, begin, out)

	return exists, err
}

func (a *InstrumentedAdmin) TopicPartitions(ctx context.Context, topic string) ([]Partition, error) {
	begin := time.Now()
	partitions, err := a.admin.TopicPartitions(ctx, topic)
	a.observe(`topic_partitions`, begin, outcome(err))

	return partitions, err
}

func (a *InstrumentedAdmin) TopicPartition(ctx context.Context, topic string, partition int32) (*Partition, error) {
	begin := time.Now()
	pt, err := a.admin.TopicPartition(ctx, topic, partition)
	out := outcome(err)
	if err == nil && pt == nil {
		out = outcomeAbsent
	}
	a.observe(`topic_partition`, begin, out)

	return pt, err
}

func (a *InstrumentedAdmin) TopicConfigs(ctx context.Context, topic string) (map[string]string, error) {
	begin := time.Now()
	configs, err := a.admin.TopicConfigs(ctx, topic)
	a.observe(`topic_configs`, begin, outcome(err))

	return configs, err
}

func (a *InstrumentedAdmin) Close() error {
	a.latency.UnRegister()
	return a.admin.Close()
}
