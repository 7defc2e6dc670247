/*
Package uid – operation ids.

Ids are version 7 UUIDs: the leading 48 bits hold the creation time in unix
milliseconds, so ids sort by creation time in log output.
*/
package uid

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a fresh id.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Time extracts the creation time of an id.
func Time(id string) (time.Time, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("uid: %w", err)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("uid: %s is a version %d uuid", id, u.Version())
	}
	var ms [8]byte
	copy(ms[2:], u[:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(ms[:]))), nil
}
