package protocol

import "github.com/google/uuid"

func uuidFromArray(b [16]byte) uuid.UUID {
	var id uuid.UUID
	copy(id[:], b[:])
	return id
}
