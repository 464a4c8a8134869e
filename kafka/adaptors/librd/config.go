package librd

import (
	"strings"

	librdKafka "github.com/confluentinc/confluent-kafka-go/kafka"
)

// adminConfigMap builds the librdkafka configuration of the admin client. Overrides are applied last.
func adminConfigMap(bootstrapServers []string, clientID string, overrides librdKafka.ConfigMap) *librdKafka.ConfigMap {
	conf := librdKafka.ConfigMap{
		`bootstrap.servers`:                  strings.Join(bootstrapServers, `,`),
		`client.id`:                          clientID,
		`socket.keepalive.enable`:            true,
		`topic.metadata.refresh.interval.ms`: 60000,
		`log_level`:                          3,
	}

	for key, val := range overrides {
		conf[key] = val
	}

	return &conf
}
