package warmstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Serialization helpers for parameter maps
//
// Query parameters participate in two places: as a distinguishing component of
// cache keys, and as the grouping key for the tracker's param-variant counters.
// Both need a canonical form so that semantically equal maps always produce the
// same string. encoding/json marshals map keys in sorted order, which gives us
// that canonical form for free.

// CanonicalParams returns the canonical string form of a parameter map.
// Nil and empty maps both canonicalize to "{}". Values that cannot be
// marshaled (channels, funcs) fall back to "{}" rather than failing, since
// params originate from untrusted event payloads.
func CanonicalParams(params map[string]interface{}) string {
	if len(params) == 0 {
		return "{}"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParamsHash returns a short hex digest of the canonical params, suitable for
// embedding in Redis keys. Empty params hash to the literal "-" so that
// param-free cache keys stay human-readable.
func ParamsHash(params map[string]interface{}) string {
	if len(params) == 0 {
		return "-"
	}
	sum := sha256.Sum256([]byte(CanonicalParams(params)))
	return hex.EncodeToString(sum[:])[:12]
}
