package shared

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

func encodeValue[T any](v T) ([]byte, error) {
	buf := bytes.Buffer{}

	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}

	return buf.Bytes(), nil
}

func decodeValue[T any](data []byte) (T, error) {
	var v T

	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}

	return v, nil
}
