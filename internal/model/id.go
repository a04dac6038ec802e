package model

import "github.com/oklog/ulid/v2"

// NewID returns a ULID string used for command ids and correlation tokens.
// ULIDs sort by creation time, so history listings stay in submission order.
func NewID() string {
	return ulid.Make().String()
}
