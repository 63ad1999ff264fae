package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediconnect-backend/internal/domain"
)

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "appointment:appt-1", channelFor("appt-1"))
}

func TestSnapshotCodec(t *testing.T) {
	offer := `{"type":"offer","sdp":"v=0"}`
	in := domain.Snapshot{AppointmentID: "appt-1", Exists: true, Offer: &offer}

	payload, err := encodeSnapshot(in)
	require.NoError(t, err)

	out, err := decodeSnapshot("appt-1", string(payload))
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Nil(t, out.Answer)
}

func TestDecodeSnapshot_Rejects(t *testing.T) {
	_, err := decodeSnapshot("appt-1", "not json")
	assert.Error(t, err)

	_, err = decodeSnapshot("appt-1", `{"appointmentId":"appt-2","exists":true}`)
	assert.Error(t, err)
}
