package metadata

import (
	"errors"
	"fmt"

	"github.com/gmbyapa/krest/kafka"
)

// ErrNotFound matches both TopicNotFoundError and PartitionNotFoundError.
var ErrNotFound = errors.New(`not found`)

type TopicNotFoundError struct {
	Topic string
}

func (e *TopicNotFoundError) Error() string {
	return fmt.Sprintf(`topic [%s] not found`, e.Topic)
}

func (e *TopicNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type PartitionNotFoundError struct {
	Topic     string
	Partition int32
}

func (e *PartitionNotFoundError) Error() string {
	return fmt.Sprintf(`partition [%s-%d] not found`, e.Topic, e.Partition)
}

func (e *PartitionNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// GatewayError is a failure of the Admin call itself(timeouts, connection failures, broker errors). It says
// nothing about whether the requested resource exists.
type GatewayError struct {
	Op    string
	Topic string
	Err   error
}

func (e *GatewayError) Error() string {
	if e.Topic == `` {
		return fmt.Sprintf(`admin %s failed: %s`, e.Op, e.Err)
	}

	return fmt.Sprintf(`admin %s failed for topic [%s]: %s`, e.Op, e.Topic, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the underlying failure is transient.
func (e *GatewayError) Retriable() bool {
	return kafka.IsRetriable(e.Err)
}
