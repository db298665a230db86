// Package netmsg implements the JSON framing used on the control channel.
//
// A chunk read from the network holds zero or more documents shaped
//
//	{"arr": [ {"<field>": <value>}, ... ]}
//
// written back to back and separated only by a comma. There is no length
// header, so document boundaries are found by scanning for "]},".
package netmsg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUndecodable means the chunk as a whole could not be decoded as text.
	// It is distinct from an empty batch, which is a valid no-op.
	ErrUndecodable = errors.New("netmsg: chunk is not valid utf-8")
	ErrNotObject   = errors.New("netmsg: item is not an object")
	ErrNotNumeric  = errors.New("netmsg: value is not numeric")
)

const boundary = "]},"

// Item is a single key/value association from a document's "arr" list.
type Item struct {
	Key   string
	Value json.RawMessage
}

// Float returns the item value as a number. Booleans map to 0 and 1.
func (it Item) Float() (float64, error) {
	raw := bytes.TrimSpace(it.Value)
	switch string(raw) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%s", ErrNotNumeric, it.Key, raw)
	}
	return f, nil
}

// MarshalJSON encodes the item as a single-key object.
func (it Item) MarshalJSON() ([]byte, error) {
	key, err := json.Marshal(it.Key)
	if err != nil {
		return nil, err
	}
	value := it.Value
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(value)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NewItem builds an item from any JSON-encodable value.
func NewItem(key string, value any) (Item, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Item{}, err
	}
	return Item{Key: key, Value: raw}, nil
}

// SegmentError records a piece of a chunk that was discarded.
type SegmentError struct {
	Raw string
	Err error
}

func (e SegmentError) Error() string {
	return fmt.Sprintf("netmsg: skipped segment %q: %v", e.Raw, e.Err)
}

func (e SegmentError) Unwrap() error { return e.Err }

// Batch is the combined result of parsing one chunk.
type Batch struct {
	Items   []Item
	Skipped []SegmentError
}

// Split cuts text into document candidates at every "]}," boundary. The
// comma is dropped. A trailing remainder with no following comma is kept as
// the last segment unless it is blank.
func Split(text string) []string {
	var segments []string
	for {
		idx := strings.Index(text, boundary)
		if idx < 0 {
			break
		}
		end := idx + len(boundary) - 1
		segments = append(segments, text[:end])
		text = text[end+1:]
	}
	if strings.TrimSpace(text) != "" {
		segments = append(segments, text)
	}
	return segments
}

// Parse decodes every document in chunk and concatenates their items in
// order. Segments that fail to decode are retried from the next '{' so that
// garbage in front of a document does not take the document with it.
// ErrUndecodable is returned only when the chunk is not text at all.
func Parse(chunk []byte) (Batch, error) {
	if !utf8.Valid(chunk) {
		return Batch{}, ErrUndecodable
	}

	var batch Batch
	for _, seg := range Split(string(chunk)) {
		parseSegment(seg, &batch)
	}
	return batch, nil
}

func parseSegment(seg string, batch *Batch) {
	for {
		items, err := decodeDocument(seg)
		if err == nil {
			batch.Items = append(batch.Items, items...)
			return
		}

		next := strings.IndexByte(seg[1:], '{')
		if next < 0 {
			batch.Skipped = append(batch.Skipped, SegmentError{Raw: seg, Err: err})
			return
		}
		next++
		batch.Skipped = append(batch.Skipped, SegmentError{Raw: seg[:next], Err: err})
		seg = seg[next:]
	}
}

type envelope struct {
	Arr []json.RawMessage `json:"arr"`
}

func decodeDocument(doc string) ([]Item, error) {
	var env envelope
	dec := json.NewDecoder(strings.NewReader(doc))
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after document at offset %d", dec.InputOffset())
	}
	if env.Arr == nil {
		return nil, errors.New(`missing "arr" list`)
	}

	var items []Item
	for _, raw := range env.Arr {
		objItems, err := decodeObject(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, objItems...)
	}
	return items, nil
}

// decodeObject keeps the key order of the source object.
func decodeObject(raw json.RawMessage) ([]Item, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: %s", ErrNotObject, raw)
	}

	var items []Item
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotObject, raw)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		items = append(items, Item{Key: key, Value: value})
	}
	return items, nil
}

// Encode wraps items in an "arr" envelope.
func Encode(items ...Item) []byte {
	if items == nil {
		items = []Item{}
	}
	// Item.MarshalJSON cannot fail for a valid key string.
	data, _ := json.Marshal(outEnvelope{Arr: items})
	return data
}

type outEnvelope struct {
	Arr []Item `json:"arr"`
}

// OK is the acknowledgement sent after a batch has been applied.
func OK() []byte {
	return Encode(Item{Key: "OK", Value: json.RawMessage(`"OK"`)})
}

// Stop signals the end of a connection.
func Stop() []byte {
	return Encode(Item{Key: "STOP", Value: json.RawMessage(`"STOP"`)})
}

// IsStop reports whether items carry a STOP marker.
func IsStop(items []Item) bool {
	for _, it := range items {
		if it.Key == "STOP" {
			return true
		}
	}
	return false
}
