package libinsight

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// count is a usage counter as the API reports it. Missing, null, negative
// and non-numeric values become 0; numeric strings are accepted.
type count int64

func (c *count) UnmarshalJSON(b []byte) error {
	*c = 0

	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	s := string(b)
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(strings.ReplaceAll(str, ",", ""))
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return nil
	}
	if f > math.MaxInt64 {
		*c = math.MaxInt64
		return nil
	}
	*c = count(int64(f))
	return nil
}

// text is a descriptive field that may arrive as a string, a number or null
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	*t = ""

	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*t = text(strings.TrimSpace(s))
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return nil
		}
		if i, err := n.Int64(); err == nil {
			*t = text(strconv.FormatInt(i, 10))
		} else {
			*t = text(n.String())
		}
	}
	return nil
}
