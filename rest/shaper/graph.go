package shaper

import (
	"fmt"
	"io"
	"sort"

	"github.com/awalterschulze/gographviz"
	"github.com/gmbyapa/krest/kafka"
	"github.com/gmbyapa/krest/pkg/errors"
)

const graphName = `cluster`

// TopologyGraph is the graph representation body. Encode renders it as a Graphviz DOT digraph of
// topic -> partition -> broker edges. Leader edges are bold and out of sync replicas are dashed.
type TopologyGraph struct {
	Topics     []string
	Partitions []kafka.Partition
}

type graphRepresentation struct{}

func (graphRepresentation) Version() Version { return Graph }

func (graphRepresentation) JSON() bool { return false }

func (graphRepresentation) Partition(p kafka.Partition) interface{} {
	return TopologyGraph{Topics: []string{p.Topic}, Partitions: []kafka.Partition{p}}
}

func (graphRepresentation) Partitions(partitions []kafka.Partition) interface{} {
	var topics []string
	seen := map[string]bool{}
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}

	return TopologyGraph{Topics: topics, Partitions: partitions}
}

func (graphRepresentation) Topic(tp kafka.Topic) interface{} {
	return TopologyGraph{Topics: []string{tp.Name}, Partitions: tp.Partitions}
}

func (graphRepresentation) Topics(names []string) interface{} {
	return TopologyGraph{Topics: names}
}

func (graphRepresentation) Encode(w io.Writer, body interface{}) error {
	tg, ok := body.(TopologyGraph)
	if !ok {
		return errors.Errorf(`graph representation cannot encode %T`, body)
	}

	g, err := tg.build()
	if err != nil {
		return errors.Wrap(err, `cannot build topology graph`)
	}

	_, err = io.WriteString(w, g.String())
	return err
}

func (tg TopologyGraph) build() (*gographviz.Graph, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(graphName); err != nil {
		return nil, err
	}

	if err := g.SetDir(true); err != nil {
		return nil, err
	}

	if err := g.AddAttr(graphName, `rankdir`, `LR`); err != nil {
		return nil, err
	}

	for _, topic := range tg.Topics {
		if err := g.AddNode(graphName, topicNode(topic), map[string]string{
			`label`:     fmt.Sprintf(`"%s"`, topic),
			`shape`:     `box`,
			`style`:     `"rounded,filled"`,
			`fillcolor`: `darkseagreen1`,
		}); err != nil {
			return nil, err
		}
	}

	brokers := map[int32]bool{}
	for _, p := range tg.Partitions {
		pNode := partitionNode(p)
		if err := g.AddNode(graphName, pNode, map[string]string{
			`label`: fmt.Sprintf(`"partition %d"`, p.Index),
			`shape`: `ellipse`,
		}); err != nil {
			return nil, err
		}

		if err := g.AddEdge(topicNode(p.Topic), pNode, true, nil); err != nil {
			return nil, err
		}

		for _, r := range p.Replicas {
			if !brokers[r.Broker] {
				brokers[r.Broker] = true
				if err := g.AddNode(graphName, brokerNode(r.Broker), map[string]string{
					`label`: fmt.Sprintf(`"broker %d"`, r.Broker),
					`shape`: `cylinder`,
				}); err != nil {
					return nil, err
				}
			}

			attrs := map[string]string{}
			if r.Leader {
				attrs[`penwidth`] = `2`
				attrs[`label`] = `leader`
			}
			if !r.InSync {
				attrs[`style`] = `dashed`
			}

			if err := g.AddEdge(pNode, brokerNode(r.Broker), true, attrs); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

func topicNode(topic string) string {
	return fmt.Sprintf(`"topic/%s"`, topic)
}

func partitionNode(p kafka.Partition) string {
	return fmt.Sprintf(`"topic/%s/%d"`, p.Topic, p.Index)
}

func brokerNode(id int32) string {
	return fmt.Sprintf(`"broker/%d"`, id)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
