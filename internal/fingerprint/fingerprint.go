// Package fingerprint computes the canonical cache key for a chat request:
// a lowercase hex SHA-256 over sort-key, no-whitespace JSON with stream
// forced false.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"llmgateway/internal/domain"
)

// Cacheable reports whether a request is eligible for fingerprinting and
// caching: non-streaming, and temperature is either unset or exactly zero.
func Cacheable(req domain.ChatRequest) bool {
	if req.Stream {
		return false
	}
	return req.Temperature == nil || *req.Temperature == 0
}

// Compute returns the hex-encoded SHA-256 of the canonical JSON form of req,
// with stream forced to false. Keys are sorted and no whitespace is emitted.
func Compute(req domain.ChatRequest) string {
	canon := canonicalize(req)
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// canonicalize produces sort-key, no-whitespace JSON. We build an ordered
// map-like structure by marshaling through map[string]interface{} (whose
// keys encoding/json already sorts) after round-tripping the struct.
func canonicalize(req domain.ChatRequest) []byte {
	req.Stream = false

	raw, _ := json.Marshal(req)
	var generic map[string]interface{}
	_ = json.Unmarshal(raw, &generic)

	out, _ := marshalSorted(generic)
	return out
}

// marshalSorted re-marshals a decoded JSON value with object keys in sorted
// order and no extraneous whitespace. Objects and arrays are written by hand
// with keys sorted explicitly, so the ordering does not rest on
// encoding/json's map handling; scalars go through json.Marshal.
func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte("{")
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf := []byte("[")
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}
