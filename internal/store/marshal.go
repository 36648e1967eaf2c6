package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/vidproof/internal/ir"
)

// marshalObject converts an object to canonical JSON TEXT.
func marshalObject(obj ir.Object) (string, error) {
	if obj == nil {
		obj = ir.Object{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT. Integers decode through
// json.Number so values above 2^53 survive.
func unmarshalObject(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}
