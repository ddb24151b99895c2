package census

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var ErrMalformedPayload = errors.New("census: malformed payload")

// DecodeTable parses the Census array-of-arrays payload. The first row is the
// header. An empty body decodes to no columns and no rows.
func DecodeTable(body []byte) ([]string, [][]string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var payload [][]any
	if err := decoder.Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: trailing data after payload", ErrMalformedPayload)
	}
	if len(payload) == 0 {
		return nil, nil, nil
	}

	columns := make([]string, len(payload[0]))
	for i, cell := range payload[0] {
		name, ok := cell.(string)
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("%w: header cell %d is not a name", ErrMalformedPayload, i)
		}
		columns[i] = name
	}

	rows := make([][]string, 0, len(payload)-1)
	for i, raw := range payload[1:] {
		if len(raw) != len(columns) {
			return nil, nil, fmt.Errorf("%w: row %d has %d cells, header has %d", ErrMalformedPayload, i+1, len(raw), len(columns))
		}
		row := make([]string, len(raw))
		for j, cell := range raw {
			value, ok := cellString(cell)
			if !ok {
				return nil, nil, fmt.Errorf("%w: row %d cell %d", ErrMalformedPayload, i+1, j)
			}
			row[j] = value
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

func cellString(value any) (string, bool) {
	switch typed := value.(type) {
	case nil:
		return "", true
	case string:
		return typed, true
	case json.Number:
		return typed.String(), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return "", false
	}
}
