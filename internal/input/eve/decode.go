package eve

import (
	"bytes"
	"errors"

	json "github.com/goccy/go-json"

	"minisiem/pkg/models"
)

var (
	errNotObject    = errors.New("line is not a JSON object")
	errTrailingData = errors.New("extra data after JSON object")
)

// decodeEvent decodes one line into an Event. Invalid UTF-8 is replaced,
// numbers keep their literal form so large flow ids survive re-encoding.
// Anything but whitespace after the object makes the line malformed.
func decodeEvent(line []byte) (models.Event, error) {
	line = bytes.ToValidUTF8(line, []byte("\uFFFD"))
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var event models.Event
	if err := dec.Decode(&event); err != nil {
		return nil, err
	}
	if event == nil {
		return nil, errNotObject
	}
	if off := dec.InputOffset(); off != int64(len(trimmed)) {
		return nil, errTrailingData
	}
	return event, nil
}

// isCompleteObject reports whether b holds exactly one JSON object.
func isCompleteObject(b []byte) bool {
	_, err := decodeEvent(b)
	return err == nil
}
