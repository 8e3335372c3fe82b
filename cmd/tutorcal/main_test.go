package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopback(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", loopback(":8080"))
	assert.Equal(t, "127.0.0.1:8080", loopback("0.0.0.0:8080"))
	assert.Equal(t, "192.168.1.5:80", loopback("192.168.1.5:80"))
	assert.Equal(t, "localhost", loopback("localhost"))
}
