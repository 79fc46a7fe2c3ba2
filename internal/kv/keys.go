package kv

import "strconv"

// Keys are built from a fixed, typed schema rather than ad hoc string
// concatenation: every persisted field is an enumerated constant, so a typo
// in a key name is a compile error, not a silent data split.

// GlobalField enumerates the fields of the global namespace.
type GlobalField string

// Global namespace fields.
const (
	FieldTimerModel       GlobalField = "timer_model"
	FieldTotalReadingSecs GlobalField = "total_reading_seconds"
	FieldLastActiveTag    GlobalField = "last_active_tag"
	FieldSuspendMarker    GlobalField = "suspend_marker"
	FieldDeviceInstanceID GlobalField = "device_instance_id"
)

const (
	globalPrefix = "global:"
	slotPrefix   = "slot:"
)

// GlobalKey returns the database key for a global field.
func GlobalKey(f GlobalField) []byte {
	buf := make([]byte, 0, len(globalPrefix)+len(f))
	buf = append(buf, globalPrefix...)
	buf = append(buf, f...)
	return buf
}

// SlotKey returns the database key for a library slot index.
func SlotKey(index int) []byte {
	buf := make([]byte, 0, len(slotPrefix)+4)
	buf = append(buf, slotPrefix...)
	buf = strconv.AppendInt(buf, int64(index), 10)
	return buf
}

// SlotKeyPrefix returns the prefix covering every library slot, for iteration.
func SlotKeyPrefix() []byte {
	return []byte(slotPrefix)
}
