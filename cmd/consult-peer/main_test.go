package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"mediconnect-backend/internal/call"
)

func TestTerminal(t *testing.T) {
	assert.True(t, terminal(&call.Error{Kind: call.KindNotFound, Message: "Appointment not found"}))
	assert.True(t, terminal(&call.Error{Kind: call.KindUnauthorized}))
	assert.True(t, terminal(&call.Error{Kind: call.KindLoad, Err: errors.New("dial tcp")}))

	assert.False(t, terminal(&call.Error{Kind: call.KindMediaAccess}))
	assert.False(t, terminal(&call.Error{Kind: call.KindSignaling}))
	assert.False(t, terminal(call.ErrClosed))
}
