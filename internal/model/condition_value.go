package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueKind tags which member of ConditionValue is set.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

// ConditionValue is the closed union string | number | boolean | []string used both for
// rule operands and for values resolved out of a PatientContext.
type ConditionValue struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []string
}

func StringValue(s string) ConditionValue  { return ConditionValue{kind: KindString, str: s} }
func NumberValue(n float64) ConditionValue { return ConditionValue{kind: KindNumber, num: n} }
func BoolValue(b bool) ConditionValue      { return ConditionValue{kind: KindBool, b: b} }
func ListValue(l ...string) ConditionValue {
	return ConditionValue{kind: KindList, list: append([]string{}, l...)}
}

func (v ConditionValue) Kind() ValueKind { return v.kind }
func (v ConditionValue) IsZero() bool    { return v.kind == KindNone }
func (v ConditionValue) IsList() bool    { return v.kind == KindList }

// List returns a copy of the list members, or nil for scalars.
func (v ConditionValue) List() []string {
	if v.kind != KindList {
		return nil
	}
	return append([]string{}, v.list...)
}

// Number coerces the value to a float. Strings are parsed, booleans map to 1/0.
// Lists and unparsable strings do not coerce.
func (v ConditionValue) Number() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, !math.IsNaN(v.num)
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Text renders a scalar for substring matching.
func (v ConditionValue) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		return strings.Join(v.list, ",")
	}
	return ""
}

// Equal is strict: both kind and value must match. Lists compare element-wise.
func (v ConditionValue) Equal(o ConditionValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	}
	return false
}

func (v ConditionValue) String() string {
	if v.kind == KindList {
		return "[" + v.Text() + "]"
	}
	return v.Text()
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		return json.Marshal(v.list)
	}
	return []byte("null"), nil
}

func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = ConditionValue{}
	case string:
		*v = StringValue(t)
	case float64:
		*v = NumberValue(t)
	case bool:
		*v = BoolValue(t)
	case []interface{}:
		list := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("condition value list must contain only strings, got %T", item)
			}
			list = append(list, s)
		}
		*v = ConditionValue{kind: KindList, list: list}
	default:
		return fmt.Errorf("unsupported condition value %s", string(data))
	}
	return nil
}

func (v ConditionValue) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindNumber:
		return v.num, nil
	case KindBool:
		return v.b, nil
	case KindList:
		return v.list, nil
	}
	return nil, nil
}

func (v *ConditionValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return fmt.Errorf("condition value list must contain only strings: %w", err)
		}
		*v = ConditionValue{kind: KindList, list: list}
		return nil
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!int", "!!float":
			var f float64
			if err := node.Decode(&f); err != nil {
				return err
			}
			*v = NumberValue(f)
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			*v = BoolValue(b)
		case "!!null":
			*v = ConditionValue{}
		default:
			*v = StringValue(node.Value)
		}
		return nil
	}
	return fmt.Errorf("unsupported condition value at line %d", node.Line)
}
