package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ramkumarar/planprobe/internal/model"
)

// ParseJSON reads an EXPLAIN (FORMAT JSON) document and produces the plan tree.
func ParseJSON(r io.Reader) (*model.PlanNode, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parser: decode explain json"), ErrParse)
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, errors.Mark(err, ErrParse)
	}

	planMap, err := asObject(entry["Plan"])
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parser: explain json missing Plan root"), ErrParse)
	}

	root, err := parsePlanObject(planMap, "0")
	if err != nil {
		return nil, err
	}
	return validated(root)
}

func pickFirstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, errors.New("parser: empty explain json payload")
		}
		obj, err := asObject(v[0])
		if err != nil {
			return nil, errors.Wrap(err, "parser: invalid explain json entry")
		}
		return obj, nil
	case map[string]any:
		return v, nil
	default:
		return nil, errors.Newf("parser: unexpected explain json top-level type %T", payload)
	}
}

// consumedKeys are interpreted into PlanNode fields; everything else lands in
// Annotations so engine-version additions survive normalization.
var consumedKeys = map[string]struct{}{
	"Node Type":           {},
	"Relation Name":       {},
	"Index Name":          {},
	"Startup Cost":        {},
	"Total Cost":          {},
	"Plan Rows":           {},
	"Plan Width":          {},
	"Actual Startup Time": {},
	"Actual Total Time":   {},
	"Actual Rows":         {},
	"Actual Loops":        {},
	"Plans":               {},
}

func parsePlanObject(data map[string]any, path string) (*model.PlanNode, error) {
	node := &model.PlanNode{
		Operation:   model.Operation(asString(data["Node Type"])),
		Relation:    asString(data["Relation Name"]),
		Index:       asString(data["Index Name"]),
		StartupCost: asFloat(data["Startup Cost"]),
		TotalCost:   asFloat(data["Total Cost"]),
		PlanRows:    asInt64(data["Plan Rows"]),
		PlanWidth:   asInt64(data["Plan Width"]),
	}

	if _, ok := data["Actual Loops"]; ok {
		node.Actual = &model.ActualStats{
			StartupMs: asFloat(data["Actual Startup Time"]),
			TotalMs:   asFloat(data["Actual Total Time"]),
			Rows:      asInt64(data["Actual Rows"]),
			Loops:     asInt64(data["Actual Loops"]),
		}
	}

	for key, value := range data {
		if _, ok := consumedKeys[key]; ok {
			continue
		}
		if rendered, ok := renderScalar(value); ok && rendered != "" {
			if node.Annotations == nil {
				node.Annotations = map[string]string{}
			}
			node.Annotations[key] = rendered
		}
	}

	for i, childVal := range asSlice(data["Plans"]) {
		childMap, err := asObject(childVal)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "parser: invalid child plan at %s.%d", path, i), ErrParse)
		}
		child, err := parsePlanObject(childMap, fmt.Sprintf("%s.%d", path, i))
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	return node, nil
}

// renderScalar stringifies annotation values; nested objects are dropped.
func renderScalar(val any) (string, bool) {
	switch v := val.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case json.Number:
		return v.String(), true
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			rendered, ok := renderScalar(item)
			if !ok {
				return "", false
			}
			parts = append(parts, rendered)
		}
		return strings.Join(parts, ", "), true
	default:
		return "", false
	}
}

func asObject(val any) (map[string]any, error) {
	if val == nil {
		return nil, errors.New("nil object")
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, errors.Newf("expected object, got %T", val)
	}
	return obj, nil
}

func asSlice(val any) []any {
	v, _ := val.([]any)
	return v
}

func asString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asFloat(val any) float64 {
	switch v := val.(type) {
	case nil:
		return 0
	case float64:
		return v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func asInt64(val any) int64 {
	switch v := val.(type) {
	case nil:
		return 0
	case int64:
		return v
	case float64:
		return int64(math.Round(v))
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return int64(math.Round(f))
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
