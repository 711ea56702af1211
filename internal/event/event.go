// Package event defines the typed log events and the decoder that turns raw
// log lines into them.
package event

import "time"

// TimeLayout is the timestamp format used by all log records.
const TimeLayout = "2006-01-02 15:04:05"

// Type tags the decoded event variant.
type Type string

const (
	TypePurchase Type = "purchase"
	TypeBefriend Type = "befriend"
	TypeUnfriend Type = "unfriend"
	TypeConfig   Type = "config"
)

// Event is a decoded log record. Which fields are meaningful depends on Type:
// purchases use ID/Amount/Seq, relationship events use ID1/ID2, and config
// records use D/T. Timestamp is set for everything except config.
type Event struct {
	Type      Type
	Timestamp time.Time

	// Purchase
	ID     int64
	Amount float64
	Seq    int64 // global decode-order counter, purchases only

	// Befriend / Unfriend
	ID1 int64
	ID2 int64

	// Config (first batch line)
	D int
	T int
}
