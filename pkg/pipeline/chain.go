package pipeline

import (
	log "github.com/sirupsen/logrus"

	"github.com/withObsrvr/whr-pipeline/processor"
)

// BuildProcessorChain chains processors sequentially and subscribes all
// consumers to the last processor. It returns the components the source
// must feed: the first processor, or every consumer when there are no
// processors.
func BuildProcessorChain(processors []processor.Processor, consumers []processor.Processor) []processor.Processor {
	var lastProcessor processor.Processor

	for _, p := range processors {
		if lastProcessor != nil {
			lastProcessor.Subscribe(p)
			log.Debugf("chained processor %T -> %T", lastProcessor, p)
		}
		lastProcessor = p
	}

	if lastProcessor == nil {
		return consumers
	}
	for _, c := range consumers {
		lastProcessor.Subscribe(c)
		log.Debugf("chained processor %T -> consumer %T", lastProcessor, c)
	}
	return processors[:1]
}
