package tier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BuildLineItemsSchema returns the JSON-Schema constraint for the generative
// tier's output. Passed to the model as a structured-output hint and used
// locally to validate before anything is mapped.
func BuildLineItemsSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"product_code"},
		"properties": map[string]any{
			"product_code": map[string]any{"type": "string", "minLength": 1},
			"description":  map[string]any{"type": "string"},
			"unit_price":   map[string]any{"type": "string", "pattern": `^-?\d+(\.\d{1,2})?$`},
			"quantity":     map[string]any{"type": "integer", "minimum": 0},
			"upc":          map[string]any{"type": "string", "pattern": `^\d{12}$`},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"line_items"},
		"properties": map[string]any{
			"invoice_number": map[string]any{"type": "string"},
			"line_items": map[string]any{
				"type":  "array",
				"items": item,
			},
		},
	}
}

var (
	reGenDecimal = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)
	reGenUPC     = regexp.MustCompile(`^\d{12}$`)
)

// SanitizeLineItemsJSON removes or normalizes optional per-item fields that
// don't meet the stricter schema, so the overall document can still
// validate. Required fields are left alone; an item that is broken beyond
// its optionals should fail validation, not be patched up.
func SanitizeLineItemsJSON(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var dropped []string
	items, _ := m["line_items"].([]any)
	for idx, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		tag := func(field string) string {
			return field + "[" + strconv.Itoa(idx) + "]"
		}

		if v, ok := item["unit_price"]; ok {
			switch t := v.(type) {
			case float64:
				item["unit_price"] = fmt.Sprintf("%.2f", t)
			case string:
				s := strings.TrimSpace(strings.TrimPrefix(t, "$"))
				if reGenDecimal.MatchString(s) {
					item["unit_price"] = s
				} else if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
					item["unit_price"] = fmt.Sprintf("%.2f", f)
				} else {
					delete(item, "unit_price")
					dropped = append(dropped, tag("unit_price"))
				}
			default:
				delete(item, "unit_price")
				dropped = append(dropped, tag("unit_price"))
			}
		}

		if v, ok := item["quantity"]; ok {
			switch t := v.(type) {
			case float64:
				item["quantity"] = int(t)
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil && n >= 0 {
					item["quantity"] = n
				} else {
					delete(item, "quantity")
					dropped = append(dropped, tag("quantity"))
				}
			default:
				delete(item, "quantity")
				dropped = append(dropped, tag("quantity"))
			}
		}

		if v, ok := item["upc"].(string); ok {
			s := strings.TrimSpace(v)
			if reGenUPC.MatchString(s) {
				item["upc"] = s
			} else {
				delete(item, "upc")
				dropped = append(dropped, tag("upc"))
			}
		}

		// strict additionalProperties friendliness
		for k := range item {
			switch k {
			case "product_code", "description", "unit_price", "quantity", "upc":
			default:
				delete(item, k)
				dropped = append(dropped, tag(k))
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}
