// Package hyperparams casts the flat hyperparameter file a training container
// reads at start-up into typed values.
//
// The file maps a parameter name to a JSON-encoded scalar string:
//
//	{"max_depth": "5", "learning_rate": "0.1", "objective": "\"multi:softprob\""}
//
// Keys known to a Table are cast to the table's type, malformed values fail with
// a ConfigError, and unknown keys are passed through uncast.
package hyperparams

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"sagemaker-orchestrator/core/models"
)

// Type tags the scalar type of a hyperparameter
type Type int

const (
	Untyped Type = iota
	Int
	Float
	Bool
	String
)

func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case String:
		return "str"
	}
	return "untyped"
}

// Table is an immutable mapping from parameter name to type
type Table struct {
	types map[string]Type
}

// NewTable copies types into a new Table
func NewTable(types map[string]Type) Table {
	t := Table{types: make(map[string]Type, len(types))}
	for k, v := range types {
		t.types[k] = v
	}
	return t
}

// Lookup returns the type registered for key
func (t Table) Lookup(key string) (Type, bool) {
	typ, ok := t.types[key]
	return typ, ok
}

// Keys returns the known parameter names in sorted order
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t.types))
	for k := range t.types {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// XGBoost is the table for the gradient-boosted classifier the training image runs
var XGBoost = NewTable(map[string]Type{
	"max_depth":         Int,
	"learning_rate":     Float,
	"n_estimators":      Int,
	"silent":            Bool,
	"objective":         String,
	"eval_metric":       String,
	"booster":           String,
	"nthread":           Int,
	"n_jobs":            Int,
	"gamma":             Float,
	"min_child_weight":  Int,
	"max_delta_step":    Int,
	"subsample":         Float,
	"colsample_bytree":  Float,
	"colsample_bylevel": Float,
	"colsample_bynode":  Float,
	"reg_alpha":         Float,
	"reg_lambda":        Float,
	"scale_pos_weight":  Float,
	"random_state":      Int,
	"missing":           Float,
})

// Value is a cast hyperparameter
type Value struct {
	Type  Type
	Int   int64
	Float float64
	Bool  bool
	Str   string
	// Raw holds the original string for Untyped values
	Raw string
}

// Interface returns the value as a plain Go scalar
func (v Value) Interface() interface{} {
	switch v.Type {
	case Int:
		return v.Int
	case Float:
		return v.Float
	case Bool:
		return v.Bool
	case String:
		return v.Str
	}
	return v.Raw
}

// Encode returns the JSON-encoded form the hyperparameter file stores
func (v Value) Encode() string {
	switch v.Type {
	case Int:
		return strconv.FormatInt(v.Int, 10)
	case Float:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(v.Bool)
	case String:
		b, _ := json.Marshal(v.Str)
		return string(b)
	}
	return v.Raw
}

// Cast converts the JSON-encoded raw value of key according to table
func Cast(table Table, key, raw string) (Value, error) {
	typ, ok := table.Lookup(key)
	if !ok {
		return Value{Type: Untyped, Raw: raw}, nil
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Value{}, models.NewConfigError(fmt.Sprintf("hyperparameter %s: %q is not JSON", key, raw), err)
	}

	malformed := func() (Value, error) {
		return Value{}, models.NewConfigError(fmt.Sprintf("hyperparameter %s: cannot cast %q to %s", key, raw, typ), nil)
	}

	switch typ {
	case Int:
		f, ok := toFloat(decoded)
		// float64(math.MaxInt64) rounds up to 2^63, which no int64 holds
		if !ok || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return malformed()
		}
		return Value{Type: Int, Int: int64(f)}, nil
	case Float:
		f, ok := toFloat(decoded)
		if !ok {
			return malformed()
		}
		return Value{Type: Float, Float: f}, nil
	case Bool:
		switch b := decoded.(type) {
		case bool:
			return Value{Type: Bool, Bool: b}, nil
		case float64:
			if b == 0 || b == 1 {
				return Value{Type: Bool, Bool: b == 1}, nil
			}
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return Value{Type: Bool, Bool: parsed}, nil
			}
		}
		return malformed()
	case String:
		switch s := decoded.(type) {
		case string:
			return Value{Type: String, Str: s}, nil
		case float64, bool:
			return Value{Type: String, Str: strings.TrimSpace(raw)}, nil
		}
		return malformed()
	}
	return malformed()
}

// CastAll casts every entry of params. The first malformed value aborts.
func CastAll(table Table, params map[string]string) (map[string]Value, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]Value, len(params))
	for _, k := range keys {
		v, err := Cast(table, k, params[k])
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// Encode turns cast values back into the JSON-encoded string map the
// compute service passes to the training container
func Encode(values map[string]Value) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v.Encode()
	}
	return out
}

// Load reads a hyperparameter file
func Load(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hyperparameters: %w", err)
	}
	var params map[string]string
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, models.NewConfigError("hyperparameter file must be a flat map of strings", err)
	}
	return params, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
