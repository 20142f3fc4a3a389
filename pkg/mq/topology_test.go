package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDLQName(t *testing.T) {
	assert.Equal(t, "projects.update.dlq", DLQName("projects.update"))
	assert.Equal(t, "invalid.dlq", DLQName("invalid"))
}

func TestExchanges(t *testing.T) {
	assert.Equal(t, []string{"events", "events.dlq"}, exchanges)
}
