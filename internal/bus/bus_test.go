package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToNATSPattern(t *testing.T) {
	assert.Equal(t, "tracker.events.>", toNATSPattern("tracker/events/#"))
	assert.Equal(t, "tracker.events.*.created", toNATSPattern("tracker/events/+/created"))
	assert.Equal(t, "plugins.events.installed", toNATSPattern("plugins/events/installed"))
}

func TestToBusTopic_RoundTripsPlainTopics(t *testing.T) {
	topics := []string{
		"tracker/events/test/hello",
		"plugins/events/installed",
		"tracker/events/bad",
	}
	for _, topic := range topics {
		assert.Equal(t, topic, toBusTopic(toNATSPattern(topic)))
	}
}
