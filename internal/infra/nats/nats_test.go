package natsclient

import (
	"testing"

	"github.com/sifan077/tinylink/config"
	"github.com/stretchr/testify/assert"
)

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "nats://localhost:4222", buildURL(config.NATSConfig{}))
	assert.Equal(t, "nats://queue:5222", buildURL(config.NATSConfig{Host: "queue", Port: 5222}))
}

func TestReady_NilConn(t *testing.T) {
	assert.Error(t, Ready(nil))
}
