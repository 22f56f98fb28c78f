package objectstore

import (
	"encoding/json"
	"fmt"
)

func unmarshalJSON(data []byte, v interface{}, uri string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", uri, err)
	}
	return nil
}
