package boltdb

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// Записи очередей и конфликтов содержат payload целиком, поэтому хранятся сжатыми.

func encodeCompressed(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	return snappy.Encode(nil, data), nil
}

func decodeCompressed(raw []byte, v any) error {
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return fmt.Errorf("failed to decompress: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}
	return nil
}
