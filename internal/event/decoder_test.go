package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePurchase(t *testing.T) {
	d := NewDecoder()

	ev, err := d.Decode(`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "1", "amount": "16.83"}`)
	require.NoError(t, err)

	assert.Equal(t, TypePurchase, ev.Type)
	assert.Equal(t, time.Date(2017, 6, 13, 11, 33, 1, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, 16.83, ev.Amount)
	assert.Equal(t, int64(0), ev.Seq)
}

func TestDecodeBefriend(t *testing.T) {
	d := NewDecoder()

	ev, err := d.Decode(`{"event_type":"befriend", "timestamp":"2017-06-13 11:33:01", "id1": "1", "id2": "2"}`)
	require.NoError(t, err)

	assert.Equal(t, TypeBefriend, ev.Type)
	assert.Equal(t, int64(1), ev.ID1)
	assert.Equal(t, int64(2), ev.ID2)
}

func TestDecodeUnfriend(t *testing.T) {
	d := NewDecoder()

	ev, err := d.Decode(`{"event_type":"unfriend", "timestamp":"2017-06-13 11:33:01", "id1": "1", "id2": "3"}`)
	require.NoError(t, err)

	assert.Equal(t, TypeUnfriend, ev.Type)
	assert.Equal(t, int64(1), ev.ID1)
	assert.Equal(t, int64(3), ev.ID2)
}

func TestDecodeConfig(t *testing.T) {
	d := NewDecoder()

	ev, err := d.Decode(`{"D":"3", "T":"50"}`)
	require.NoError(t, err)

	assert.Equal(t, TypeConfig, ev.Type)
	assert.Equal(t, 3, ev.D)
	assert.Equal(t, 50, ev.T)
}

func TestDecodeNumericFields(t *testing.T) {
	// Unquoted JSON numbers coerce the same as quoted text
	d := NewDecoder()

	ev, err := d.Decode(`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": 7, "amount": 42.5}`)
	require.NoError(t, err)
	assert.Equal(t, int64(7), ev.ID)
	assert.Equal(t, 42.5, ev.Amount)

	ev, err = d.Decode(`{"D": 2, "T": 10}`)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.D)
	assert.Equal(t, 10, ev.T)
}

func TestSeqCounterAdvancesOnPurchasesOnly(t *testing.T) {
	d := NewDecoder()
	purchase := `{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "1", "amount": "16.83"}`

	ev1, err := d.Decode(purchase)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ev1.Seq)

	// Relationship and config events never touch the counter
	_, err = d.Decode(`{"event_type":"befriend", "timestamp":"2017-06-13 11:33:01", "id1": "1", "id2": "2"}`)
	require.NoError(t, err)
	_, err = d.Decode(`{"D":1, "T":2}`)
	require.NoError(t, err)

	ev2, err := d.Decode(purchase)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev2.Seq)
}

func TestSeqCounterNotAdvancedOnRejection(t *testing.T) {
	d := NewDecoder()

	// Purchase-shaped record with an unparseable amount
	_, err := d.Decode(`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "1", "amount": "lots"}`)
	require.ErrorIs(t, err, ErrCoercion)

	ev, err := d.Decode(`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "1", "amount": "16.83"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ev.Seq)
}

func TestDecodeMalformed(t *testing.T) {
	d := NewDecoder()

	_, err := d.Decode(`{"event_type":"purchase", "timestamp"`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = d.Decode(`not json at all`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeSchemaMismatch(t *testing.T) {
	d := NewDecoder()

	tests := []string{
		`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "1"}`,     // no amount
		`{"event_type":"befriend", "timestamp":"2017-06-13 11:33:01", "id1": "1"}`,    // no id2
		`{"event_type":"divorce", "timestamp":"2017-06-13 11:33:01", "id": "1", "amount": "2"}`, // unknown type
		`{"D": 2}`, // no T
		`{}`,
	}
	for _, line := range tests {
		_, err := d.Decode(line)
		assert.ErrorIs(t, err, ErrSchema, "line: %s", line)
	}
}

func TestDecodeCoercionFailures(t *testing.T) {
	d := NewDecoder()

	tests := []string{
		`{"event_type":"purchase", "timestamp":"June 13th", "id": "1", "amount": "16.83"}`,
		`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "one", "amount": "16.83"}`,
		`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "1.5", "amount": "16.83"}`,
		`{"event_type":"befriend", "timestamp":"2017-06-13 11:33:01", "id1": "x", "id2": "2"}`,
		`{"D":"two", "T":"50"}`,
	}
	for _, line := range tests {
		_, err := d.Decode(line)
		assert.ErrorIs(t, err, ErrCoercion, "line: %s", line)
	}
}

func TestDecodeToleratesExtraKeys(t *testing.T) {
	d := NewDecoder()

	ev, err := d.Decode(`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "1", "amount": "16.83", "note":"gift"}`)
	require.NoError(t, err)
	assert.Equal(t, TypePurchase, ev.Type)
}
