package reading

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// DedupKey derives the content hash stored in readings_raw.msg_id.
//
// The key covers the external device id and the normalized values only, so
// the same reading redelivered under a different transport message id
// collapses to the same key.
func DedupKey(deviceUID string, n Normalized) string {
	doc, _ := json.Marshal(struct { //nolint:errchkjson // fixed struct of strings and finite floats
		DeviceID    string  `json:"deviceId"`
		Temperature float64 `json:"temperature"`
		Humidity    float64 `json:"humidity"`
		TS          string  `json:"ts"`
	}{deviceUID, n.Temperature, n.Humidity, n.TS()})

	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}
