package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/labstack/echo/v4"
)

// date fields of request bodies that also accept dateLayout (read as midnight UTC)
var bodyDateFields = []string{"date", "due_date", "start_date", "end_date", "last_date"}

// jsonSerializer is echo's default JSON serializer, except that request bodies may carry
// top-level dates formatted as 2006-01-02 besides RFC 3339 timestamps.
type jsonSerializer struct {
	echo.DefaultJSONSerializer
}

func (s jsonSerializer) Deserialize(ctx echo.Context, i interface{}) error {
	req := ctx.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(expandDates(body)))
	return s.DefaultJSONSerializer.Deserialize(ctx, i)
}

// expandDates rewrites date-only values to RFC 3339. Anything it cannot read is left to the decoder.
func expandDates(body []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return body
	}

	var changed bool
	for _, fld := range bodyDateFields {
		raw, ok := obj[fld]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			continue
		}
		if obj[fld], err = json.Marshal(d); err != nil {
			return body
		}
		changed = true
	}
	if !changed {
		return body
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return out
}
