package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gmbyapa/krest/kafka"
	"github.com/gmbyapa/krest/kafka/mocks"
	"github.com/gmbyapa/krest/metadata"
	"github.com/gmbyapa/krest/rest/shaper"
	"github.com/tryfix/log"
)

func topic1() kafka.Topic {
	return kafka.Topic{
		Name:    `topic1`,
		Configs: map[string]string{`cleanup.policy`: `delete`},
		Partitions: []kafka.Partition{
			{Topic: `topic1`, Index: 0, Replicas: []kafka.PartitionReplica{
				{Broker: 0, Leader: true, InSync: true},
				{Broker: 1, Leader: false, InSync: false},
			}},
			{Topic: `topic1`, Index: 1, Replicas: []kafka.PartitionReplica{
				{Broker: 0, Leader: false, InSync: true},
				{Broker: 1, Leader: true, InSync: true},
			}},
		},
	}
}

const (
	partition0V1 = `{"partition":0,"leader":0,"replicas":[{"broker":0,"leader":true,"in_sync":true},{"broker":1,"leader":false,"in_sync":false}]}`
	partition1V1 = `{"partition":1,"leader":1,"replicas":[{"broker":0,"leader":false,"in_sync":true},{"broker":1,"leader":true,"in_sync":true}]}`
)

var v1AcceptHeaders = []string{
	``,
	shaper.MediaTypeKafkaV1JSON,
	shaper.MediaTypeKafkaDefaultJSON,
	shaper.MediaTypeJSON,
	`application/vnd.kafka.v1+json; q=0.9, application/json; q=0.5`,
	`application/json; q=0.9, text/html; q=0.1`,
	`*/*`,
}

func newTestServer(t *testing.T, admin kafka.Admin) http.Handler {
	t.Helper()
	srv, err := NewServer(NewConfig(), metadata.NewResolver(admin, log.NewNoopLogger()))
	if err != nil {
		t.Fatal(err)
	}

	return srv.Handler()
}

func get(ctx context.Context, handler http.Handler, path, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	if accept != `` {
		req.Header.Set(`Accept`, accept)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorMessage {
	t.Helper()
	msg := ErrorMessage{}
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("cannot decode error body %q: %s", rec.Body.String(), err)
	}

	return msg
}

func TestHandler_Partitions(t *testing.T) {
	handler := newTestServer(t, mocks.NewMockAdminWithTopics(topic1()))
	for _, accept := range v1AcceptHeaders {
		t.Run(`accept_`+accept, func(t *testing.T) {
			rec := get(context.Background(), handler, `/topics/topic1/partitions`, accept)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
			}

			want := `[` + partition0V1 + `,` + partition1V1 + `]` + "\n"
			if rec.Body.String() != want {
				t.Errorf("body = %s, want %s", rec.Body.String(), want)
			}

			if ct := rec.Header().Get(`Content-Type`); !strings.HasPrefix(ct, `application/`) {
				t.Errorf("Content-Type = %s", ct)
			}
		})
	}
}

func TestHandler_Partition(t *testing.T) {
	handler := newTestServer(t, mocks.NewMockAdminWithTopics(topic1()))
	for _, accept := range v1AcceptHeaders {
		rec := get(context.Background(), handler, `/topics/topic1/partitions/0`, accept)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
		}

		if rec.Body.String() != partition0V1+"\n" {
			t.Errorf("Accept %q body = %s, want %s", accept, rec.Body.String(), partition0V1)
		}
	}
}

func TestHandler_NegotiatedContentType(t *testing.T) {
	handler := newTestServer(t, mocks.NewMockAdminWithTopics(topic1()))
	tests := []struct {
		accept      string
		contentType string
	}{
		{accept: ``, contentType: shaper.DefaultMediaType},
		{accept: shaper.MediaTypeJSON, contentType: shaper.MediaTypeJSON},
		{accept: shaper.MediaTypeKafkaV2JSON, contentType: shaper.MediaTypeKafkaV2JSON},
		{accept: shaper.MediaTypeKafkaV3JSON, contentType: shaper.MediaTypeKafkaV3JSON},
		{accept: shaper.MediaTypeGraphviz, contentType: shaper.MediaTypeGraphviz},
		{accept: `image/png`, contentType: shaper.DefaultMediaType},
	}
	for _, tt := range tests {
		rec := get(context.Background(), handler, `/topics/topic1/partitions/1`, tt.accept)
		if ct := rec.Header().Get(`Content-Type`); ct != tt.contentType {
			t.Errorf("Accept %q Content-Type = %s, want %s", tt.accept, ct, tt.contentType)
		}
	}
}

func TestHandler_V3(t *testing.T) {
	handler := newTestServer(t, mocks.NewMockAdminWithTopics(topic1()))
	rec := get(context.Background(), handler, `/topics/topic1/partitions/1`, shaper.MediaTypeKafkaV3JSON)
	want := `{"kind":"KafkaPartition","topic_name":"topic1","partition_id":1,"leader_id":1,"replicas":[` +
		`{"kind":"KafkaReplica","broker_id":0,"is_leader":false,"is_in_sync":true},` +
		`{"kind":"KafkaReplica","broker_id":1,"is_leader":true,"is_in_sync":true}]}` + "\n"
	if rec.Body.String() != want {
		t.Errorf("body = %s, want %s", rec.Body.String(), want)
	}
}

func TestHandler_Graph(t *testing.T) {
	handler := newTestServer(t, mocks.NewMockAdminWithTopics(topic1()))
	rec := get(context.Background(), handler, `/topics/topic1`, shaper.MediaTypeGraphviz)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	for _, want := range []string{`digraph cluster`, `"topic/topic1"`, `"topic/topic1/1"`, `"broker/1"`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("%q missing in\n%s", want, rec.Body.String())
		}
	}
}

func TestHandler_Topics(t *testing.T) {
	tp2 := kafka.Topic{Name: `a-topic`, Partitions: []kafka.Partition{{Topic: `a-topic`, Index: 0}}}
	handler := newTestServer(t, mocks.NewMockAdminWithTopics(topic1(), tp2))

	rec := get(context.Background(), handler, `/topics`, ``)
	if rec.Body.String() != `["a-topic","topic1"]`+"\n" {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = get(context.Background(), handler, `/topics/topic1`, ``)
	want := `{"name":"topic1","configs":{"cleanup.policy":"delete"},"partitions":[` + partition0V1 + `,` + partition1V1 + `]}` + "\n"
	if rec.Body.String() != want {
		t.Errorf("body = %s, want %s", rec.Body.String(), want)
	}
}

func TestHandler_NotFound(t *testing.T) {
	handler := newTestServer(t, mocks.NewMockAdminWithTopics(topic1()))
	tests := []struct {
		path string
		code int
	}{
		{path: `/topics/unknown`, code: TopicNotFoundErrorCode},
		{path: `/topics/unknown/partitions`, code: TopicNotFoundErrorCode},
		{path: `/topics/unknown/partitions/0`, code: TopicNotFoundErrorCode},
		{path: `/topics/topic1/partitions/1000`, code: PartitionNotFoundErrorCode},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(context.Background(), handler, tt.path, ``)
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rec.Code)
			}

			if msg := decodeError(t, rec); msg.ErrorCode != tt.code {
				t.Errorf("error code = %d, want %d", msg.ErrorCode, tt.code)
			}
		})
	}
}

func TestHandler_InvalidPartition(t *testing.T) {
	admin := mocks.NewMockAdminWithTopics(topic1())
	handler := newTestServer(t, admin)
	for _, value := range []string{`abc`, `-1`, `1.5`, `4294967296`} {
		rec := get(context.Background(), handler, `/topics/topic1/partitions/`+value, ``)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", value, rec.Code)
			continue
		}

		if msg := decodeError(t, rec); msg.ErrorCode != InvalidPartitionErrorCode {
			t.Errorf("%s: error code = %d", value, msg.ErrorCode)
		}
	}

	if calls := admin.Calls(); len(calls) != 0 {
		t.Errorf("admin called for invalid partitions: %+v", calls)
	}
}

func TestHandler_GatewayFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: `fatal`, err: errors.New(`cluster authorization failed`), code: KafkaErrorCode},
		{name: `retriable`, err: kafka.Retriable(errors.New(`leader not available`)), code: KafkaRetriableErrorCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := mocks.NewMockAdminWithTopics(topic1())
			admin.FailWith(mocks.OpTopicPartitions, tt.err)

			rec := get(context.Background(), newTestServer(t, admin), `/topics/topic1/partitions`, ``)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}

			if msg := decodeError(t, rec); msg.ErrorCode != tt.code {
				t.Errorf("error code = %d, want %d", msg.ErrorCode, tt.code)
			}
		})
	}
}

func TestHandler_ErrorMediaTypeForGraph(t *testing.T) {
	handler := newTestServer(t, mocks.NewMockAdminWithTopics(topic1()))
	rec := get(context.Background(), handler, `/topics/unknown`, shaper.MediaTypeGraphviz)
	if ct := rec.Header().Get(`Content-Type`); ct != shaper.DefaultMediaType {
		t.Errorf("Content-Type = %s, want %s", ct, shaper.DefaultMediaType)
	}

	decodeError(t, rec)
}

func TestHandler_CancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	admin := mocks.NewMockAdminWithTopics(topic1())
	admin.OnCall(mocks.OpTopicPartitions, func(context.Context) { cancel() })

	rec := get(ctx, newTestServer(t, admin), `/topics/topic1/partitions`, ``)
	if rec.Body.Len() != 0 {
		t.Errorf("body written for a cancelled request: %s", rec.Body.String())
	}

	if ct := rec.Header().Get(`Content-Type`); ct != `` {
		t.Errorf("Content-Type = %s, want none", ct)
	}
}

func TestHandler_RequestID(t *testing.T) {
	handler := newTestServer(t, mocks.NewMockAdminWithTopics(topic1()))

	rec := get(context.Background(), handler, `/healthz`, ``)
	if rec.Header().Get(RequestIDHeader) == `` {
		t.Error(`request id not generated`)
	}

	req := httptest.NewRequest(http.MethodGet, `/healthz`, nil)
	req.Header.Set(RequestIDHeader, `abc`)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if id := rec.Header().Get(RequestIDHeader); id != `abc` {
		t.Errorf("request id = %s, want abc", id)
	}
}

func TestHandler_UnknownRoute(t *testing.T) {
	handler := newTestServer(t, mocks.NewMockAdmin())
	rec := get(context.Background(), handler, `/brokers`, ``)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, `/topics/topic1`, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestLogContextExtractor(t *testing.T) {
	if fields := LogContextExtractor(context.Background()); fields != nil {
		t.Errorf("fields = %v, want none", fields)
	}

	ctx := context.WithValue(context.Background(), requestIDKey{}, `abc`)
	if fields := LogContextExtractor(ctx); len(fields) != 1 {
		t.Errorf("fields = %v, want request id", fields)
	}
}
