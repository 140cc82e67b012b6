package detect

import "encoding/json"

// Payload is a decoded person_detection_response event.
type Payload struct {
	Person          bool
	Gun             bool
	Knife           bool
	MultiplePersons bool
	Text            string
}

// Snapshot returns the detection flags carried by the payload.
func (p Payload) Snapshot() Snapshot {
	return Snapshot{
		Person:          p.Person,
		Gun:             p.Gun,
		Knife:           p.Knife,
		MultiplePersons: p.MultiplePersons,
	}
}

// DecodePayload parses an inbound detection event. It never fails: a
// malformed body, a missing field or a field of the wrong type all decode
// to the zero value.
func DecodePayload(raw []byte) Payload {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Payload{}
	}
	return Payload{
		Person:          boolField(fields, "detected_person"),
		Gun:             boolField(fields, "detected_gun"),
		Knife:           boolField(fields, "detected_knife"),
		MultiplePersons: boolField(fields, "detected_multiple_persons"),
		Text:            stringField(fields, "text_message"),
	}
}

func boolField(fields map[string]json.RawMessage, key string) bool {
	raw, ok := fields[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
