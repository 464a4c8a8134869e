// Package shaper projects cluster metadata into the versioned response schemas of the REST API.
//
// Each API version is a Representation registered in a fixed table. Content negotiation picks one
// representation per request from the Accept header. Adding a version means adding a table entry, the existing
// representations never see each other.
package shaper

import (
	"encoding/json"
	"io"

	"github.com/gmbyapa/krest/kafka"
	"github.com/munnerz/goautoneg"
)

type Version string

const (
	V1    Version = `v1`
	V2    Version = `v2`
	V3    Version = `v3`
	Graph Version = `graph`
)

const (
	MediaTypeKafkaV1JSON      = `application/vnd.kafka.v1+json`
	MediaTypeKafkaDefaultJSON = `application/vnd.kafka+json`
	MediaTypeJSON             = `application/json`
	MediaTypeKafkaV2JSON      = `application/vnd.kafka.v2+json`
	MediaTypeKafkaV3JSON      = `application/vnd.kafka.v3+json`
	MediaTypeGraphviz         = `text/vnd.graphviz`

	// DefaultMediaType is used when the request accepts no recognised media type.
	DefaultMediaType = MediaTypeKafkaV1JSON
)

// Representation is the schema of one API version. Implementations are pure, the same input always encodes to
// the same bytes, and must keep the replica order of the source partition.
type Representation interface {
	Version() Version
	Partition(partition kafka.Partition) interface{}
	Partitions(partitions []kafka.Partition) interface{}
	Topic(topic kafka.Topic) interface{}
	Topics(names []string) interface{}
	Encode(w io.Writer, body interface{}) error
	// JSON reports whether the representation is a JSON document(error bodies can share its media type).
	JSON() bool
}

type mediaType struct {
	name    string
	version Version
}

// mediaTypes is ordered by preference, the first entry wins for wildcard Accept headers.
var mediaTypes = []mediaType{
	{name: MediaTypeKafkaV1JSON, version: V1},
	{name: MediaTypeKafkaDefaultJSON, version: V1},
	{name: MediaTypeJSON, version: V1},
	{name: MediaTypeKafkaV2JSON, version: V2},
	{name: MediaTypeKafkaV3JSON, version: V3},
	{name: MediaTypeGraphviz, version: Graph},
}

var representations = map[Version]Representation{
	V1:    v1Representation{},
	V2:    v2Representation{},
	V3:    v3Representation{},
	Graph: graphRepresentation{},
}

var alternatives = func() []string {
	var names []string
	for _, mt := range mediaTypes {
		names = append(names, mt.name)
	}
	return names
}()

// Negotiate selects the response media type and its representation from an Accept header. Missing and
// unrecognised headers fall back to DefaultMediaType.
func Negotiate(accept string) (string, Representation) {
	selected := goautoneg.Negotiate(accept, alternatives)
	for _, mt := range mediaTypes {
		if mt.name == selected {
			return mt.name, representations[mt.version]
		}
	}

	return DefaultMediaType, representations[V1]
}

// For returns the representation of a version.
func For(version Version) (Representation, bool) {
	rep, ok := representations[version]
	return rep, ok
}

// MediaTypes returns the recognised media types of a version.
func MediaTypes(version Version) []string {
	var names []string
	for _, mt := range mediaTypes {
		if mt.version == version {
			names = append(names, mt.name)
		}
	}

	return names
}

type jsonEncoder struct{}

func (jsonEncoder) Encode(w io.Writer, body interface{}) error {
	return json.NewEncoder(w).Encode(body)
}

func (jsonEncoder) JSON() bool { return true }

// leaderBroker returns the broker id of the partition leader or -1 when the partition has no leader.
func leaderBroker(p kafka.Partition) int32 {
	if r, ok := p.Leader(); ok {
		return r.Broker
	}

	return -1
}
