package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gmbyapa/krest/metadata"
)

const (
	TopicNotFoundErrorCode     = 40401
	PartitionNotFoundErrorCode = 40402
	InvalidPartitionErrorCode  = 40002
	InternalErrorCode          = 50001
	KafkaErrorCode             = 50002
	KafkaRetriableErrorCode    = 50003

	TopicNotFoundMessage       = `Topic not found.`
	PartitionNotFoundMessage   = `Partition not found.`
	InvalidPartitionMessage    = `Invalid partition index.`
	InternalErrorMessage       = `Internal server error.`
	KafkaErrorMessage          = `Kafka error.`
	KafkaRetriableErrorMessage = `Kafka retriable error.`
)

// ErrorMessage is the body of every error response.
type ErrorMessage struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// InvalidPartitionError is a partition path parameter that is not a non-negative 32 bit integer.
type InvalidPartitionError struct {
	Value string
}

func (e *InvalidPartitionError) Error() string {
	return `invalid partition index [` + e.Value + `]`
}

// MapError converts a failure into the http status and body of its error response. Admin failures and unknown
// errors are reported as 5xx, never as not found.
func MapError(err error) (int, ErrorMessage) {
	var (
		topicErr     *metadata.TopicNotFoundError
		partitionErr *metadata.PartitionNotFoundError
		invalidErr   *InvalidPartitionError
		gatewayErr   *metadata.GatewayError
	)

	switch {
	case errors.As(err, &topicErr):
		return http.StatusNotFound, ErrorMessage{ErrorCode: TopicNotFoundErrorCode, Message: TopicNotFoundMessage}
	case errors.As(err, &partitionErr):
		return http.StatusNotFound, ErrorMessage{ErrorCode: PartitionNotFoundErrorCode, Message: PartitionNotFoundMessage}
	case errors.As(err, &invalidErr):
		return http.StatusBadRequest, ErrorMessage{ErrorCode: InvalidPartitionErrorCode, Message: InvalidPartitionMessage}
	case errors.As(err, &gatewayErr) && gatewayErr.Retriable(),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, ErrorMessage{ErrorCode: KafkaRetriableErrorCode, Message: KafkaRetriableErrorMessage}
	case errors.As(err, &gatewayErr):
		return http.StatusInternalServerError, ErrorMessage{ErrorCode: KafkaErrorCode, Message: KafkaErrorMessage}
	default:
		return http.StatusInternalServerError, ErrorMessage{ErrorCode: InternalErrorCode, Message: InternalErrorMessage}
	}
}
