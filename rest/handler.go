/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gmbyapa/krest/kafka"
	"github.com/gmbyapa/krest/rest/shaper"
	"github.com/gorilla/mux"
	"github.com/tryfix/log"
)

// Resolver resolves cluster metadata for a single request.
type Resolver interface {
	ListTopics(ctx context.Context) ([]string, error)
	ResolveTopic(ctx context.Context, topic string) (kafka.Topic, error)
	ResolvePartitions(ctx context.Context, topic string) ([]kafka.Partition, error)
	ResolvePartition(ctx context.Context, topic string, partition int32) (kafka.Partition, error)
}

type handler struct {
	resolver Resolver
	logger   log.Logger
}

func (h *handler) listTopics(w http.ResponseWriter, r *http.Request) {
	mediaType, rep := shaper.Negotiate(r.Header.Get(`Accept`))
	topics, err := h.resolver.ListTopics(r.Context())
	if err != nil {
		h.writeError(w, r, mediaType, rep, err)
		return
	}

	h.write(w, r, mediaType, rep, rep.Topics(topics))
}

func (h *handler) getTopic(w http.ResponseWriter, r *http.Request) {
	mediaType, rep := shaper.Negotiate(r.Header.Get(`Accept`))
	topic, err := h.resolver.ResolveTopic(r.Context(), mux.Vars(r)[`topic`])
	if err != nil {
		h.writeError(w, r, mediaType, rep, err)
		return
	}

	h.write(w, r, mediaType, rep, rep.Topic(topic))
}

func (h *handler) listPartitions(w http.ResponseWriter, r *http.Request) {
	mediaType, rep := shaper.Negotiate(r.Header.Get(`Accept`))
	partitions, err := h.resolver.ResolvePartitions(r.Context(), mux.Vars(r)[`topic`])
	if err != nil {
		h.writeError(w, r, mediaType, rep, err)
		return
	}

	h.write(w, r, mediaType, rep, rep.Partitions(partitions))
}

func (h *handler) getPartition(w http.ResponseWriter, r *http.Request) {
	mediaType, rep := shaper.Negotiate(r.Header.Get(`Accept`))
	vars := mux.Vars(r)

	// validated before anything is resolved
	partition, err := parsePartition(vars[`partition`])
	if err != nil {
		h.writeError(w, r, mediaType, rep, err)
		return
	}

	pt, err := h.resolver.ResolvePartition(r.Context(), vars[`topic`], partition)
	if err != nil {
		h.writeError(w, r, mediaType, rep, err)
		return
	}

	h.write(w, r, mediaType, rep, rep.Partition(pt))
}

func parsePartition(value string) (int32, error) {
	idx, err := strconv.ParseInt(value, 10, 32)
	if err != nil || idx < 0 {
		return 0, &InvalidPartitionError{Value: value}
	}

	return int32(idx), nil
}

// write encodes the whole body before anything is sent so a failing encoder never leaves a partial response.
func (h *handler) write(w http.ResponseWriter, r *http.Request, mediaType string, rep shaper.Representation, body interface{}) {
	buf := new(bytes.Buffer)
	if err := rep.Encode(buf, body); err != nil {
		h.writeError(w, r, mediaType, rep, fmt.Errorf(`%s encoding failed: %w`, rep.Version(), err))
		return
	}

	if r.Context().Err() != nil {
		h.logger.DebugContext(r.Context(), `request cancelled, response dropped`)
		return
	}

	w.Header().Set(`Content-Type`, mediaType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.WarnContext(r.Context(), fmt.Sprintf(`response write failed due to %s`, err))
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, mediaType string, rep shaper.Representation, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		h.logger.DebugContext(r.Context(), `request cancelled, response dropped`)
		return
	}

	status, msg := MapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), fmt.Sprintf(`%s %s failed due to %s`, r.Method, r.URL.Path, err))
	} else {
		h.logger.DebugContext(r.Context(), fmt.Sprintf(`%s %s: %s`, r.Method, r.URL.Path, err))
	}

	if !rep.JSON() {
		mediaType = shaper.DefaultMediaType
	}

	writeErrorMessage(w, mediaType, status, msg, h.logger)
}

func writeErrorMessage(w http.ResponseWriter, mediaType string, status int, msg ErrorMessage, logger log.Logger) {
	byt, err := json.Marshal(msg)
	if err != nil {
		logger.Error(err)
		return
	}

	w.Header().Set(`Content-Type`, mediaType)
	w.WriteHeader(status)
	if _, err := w.Write(append(byt, '\n')); err != nil {
		logger.Warn(fmt.Sprintf(`error response write failed due to %s`, err))
	}
}
