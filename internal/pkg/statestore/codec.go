package statestore

import (
	"encoding/json"
)

// Codec converts documents to and from their persisted byte form.
type Codec[D any] struct {
	Encode func(doc D) ([]byte, error)
	Decode func(data []byte) (D, error)
}

// DecodeRecords unmarshals each raw record on its own and keeps only those
// that decode and pass check. A corrupt record never fails the whole load.
func DecodeRecords[T any](raws []json.RawMessage, check func(T) error) ([]T, int) {
	out := make([]T, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			dropped++
			continue
		}
		if check != nil {
			if err := check(rec); err != nil {
				dropped++
				continue
			}
		}
		out = append(out, rec)
	}
	return out, dropped
}
