package telegram

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"testing"
)

// jsonForm flattens a JSON request body into form values.
func jsonForm(t *testing.T, body []byte) url.Values {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Errorf("decode json body: %v", err)
		return url.Values{}
	}
	v := url.Values{}
	for k, val := range m {
		switch x := val.(type) {
		case string:
			v.Set(k, x)
		case float64:
			v.Set(k, strconv.FormatFloat(x, 'f', -1, 64))
		default:
			v.Set(k, fmt.Sprint(x))
		}
	}
	return v
}

func itoa(n int) string { return strconv.Itoa(n) }
