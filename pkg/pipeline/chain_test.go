package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/withObsrvr/whr-pipeline/processor"
)

type node struct {
	name string
	subs []processor.Processor
}

func (n *node) Process(ctx context.Context, msg processor.Message) error { return nil }
func (n *node) Subscribe(p processor.Processor)                         { n.subs = append(n.subs, p) }

func TestBuildProcessorChain(t *testing.T) {
	a, b := &node{name: "a"}, &node{name: "b"}
	c1, c2 := &node{name: "c1"}, &node{name: "c2"}

	heads := BuildProcessorChain([]processor.Processor{a, b}, []processor.Processor{c1, c2})

	assert.Equal(t, []processor.Processor{a}, heads)
	assert.Equal(t, []processor.Processor{b}, a.subs)
	assert.Equal(t, []processor.Processor{c1, c2}, b.subs)
	assert.Empty(t, c1.subs)
}

func TestBuildProcessorChainConsumersOnly(t *testing.T) {
	c1, c2 := &node{name: "c1"}, &node{name: "c2"}
	heads := BuildProcessorChain(nil, []processor.Processor{c1, c2})
	assert.Equal(t, []processor.Processor{c1, c2}, heads)
	assert.Empty(t, c1.subs)
}
