package log

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Records are canonical CBOR with RFC3339Nano timestamps.
var (
	eventEncMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})
	eventDecMode = mustDecMode(cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyQuiet,
		MaxNestedLevels: 16,
		// Attribute values decode to map[string]any so they export as JSON.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic("log: invalid CBOR encode options: " + err.Error())
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic("log: invalid CBOR decode options: " + err.Error())
	}
	return m
}

// EncodeEvent encodes event as one CBOR record.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEncMode.Marshal(event)
}

// DecodeEvent decodes one CBOR record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := eventDecMode.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns an encoder writing records to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return eventEncMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading records from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return eventDecMode.NewDecoder(r)
}
