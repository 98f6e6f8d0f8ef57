package outcome

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// RulesVersion identifies the ordered rule list below. Bump it whenever a rule is added,
// removed, reordered or its predicate changes.
const RulesVersion = 2

// Rule is one shape predicate of the classification chain. Rules are evaluated in order and
// the first match wins, so an earlier rule takes precedence over any later rule that would
// also match the same payload.
type Rule struct {
	Name        string
	Description string
	match       func(s *shape) (Outcome, bool)
}

// shape is the parsed view of a raw response that rules inspect.
type shape struct {
	raw      json.RawMessage
	fields   map[string]any
	hasError bool
	errMsg   string
}

var (
	insufficientRe = regexp.MustCompile(`(?i)(?:al menos|at least)\s+(\d+)\s+(?:puntos|registros|filas|observaciones|datos|records|rows|points|data points|observations)`)
	firstIntRe     = regexp.MustCompile(`\d+`)

	dateMarkers = []string{
		"convertir la columna a fecha",
		"could not parse date",
		"unable to parse date",
	}

	classCountKeys   = []string{"num_clases", "num_categorias", "classCount", "class_count"}
	targetColumnKeys = []string{"columna_target", "columna", "targetColumn", "target_column"}
	columnKeys       = []string{"columna", "column"}
	dtypeKeys        = []string{"dtype", "detectedType", "detected_type"}
)

var rules = []Rule{
	{
		Name:        "insufficient-data",
		Description: `error message states a minimum record count ("al menos N puntos", "at least N records")`,
		match: func(s *shape) (Outcome, bool) {
			if !s.hasError || !insufficientRe.MatchString(s.errMsg) {
				return nil, false
			}
			n, _ := strconv.Atoi(firstIntRe.FindString(s.errMsg))
			return InsufficientDataPoints{RequiredCount: n, Message: s.errMsg}, true
		},
	},
	{
		Name:        "unparsable-date",
		Description: "error message contains a date-conversion marker phrase",
		match: func(s *shape) (Outcome, bool) {
			if !s.hasError {
				return nil, false
			}
			lower := strings.ToLower(s.errMsg)
			for _, m := range dateMarkers {
				if strings.Contains(lower, m) {
					return UnparsableDate{Message: s.errMsg}, true
				}
			}
			return nil, false
		},
	},
	{
		Name:        "high-cardinality",
		Description: "error co-occurs with a numeric class-count field holding a non-negative int",
		match: func(s *shape) (Outcome, bool) {
			if !s.hasError {
				return nil, false
			}
			n, ok := s.intField(classCountKeys...)
			if !ok {
				return nil, false
			}
			col, _ := s.stringField(targetColumnKeys...)
			return HighCardinalityTarget{TargetColumn: col, ClassCount: n, Message: s.errMsg}, true
		},
	},
	{
		Name:        "incompatible-type",
		Description: "error co-occurs with a column name and a dtype",
		match: func(s *shape) (Outcome, bool) {
			if !s.hasError {
				return nil, false
			}
			col, ok := s.stringField(columnKeys...)
			if !ok {
				return nil, false
			}
			dt, ok := s.stringField(dtypeKeys...)
			if !ok {
				return nil, false
			}
			return IncompatibleColumnType{Column: col, DetectedType: dt, Message: s.errMsg}, true
		},
	},
	{
		Name:        "validation",
		Description: "error field present with no other discriminating field",
		match: func(s *shape) (Outcome, bool) {
			if !s.hasError {
				return nil, false
			}
			return ValidationError{Message: s.errMsg}, true
		},
	},
	{
		Name:        "success",
		Description: "non-empty object without an error field; payload kept verbatim",
		match: func(s *shape) (Outcome, bool) {
			if s.hasError || len(s.fields) == 0 {
				return nil, false
			}
			return Success{Payload: append(json.RawMessage(nil), s.raw...)}, true
		},
	},
}

// Rules returns a copy of the ordered rule list.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify maps a raw response body to exactly one Outcome. It never panics; any body that no
// rule accepts (invalid JSON, non-object, empty object, non-string error) yields Unknown.
func Classify(raw []byte, toolID string) Outcome {
	o, _ := Trace(raw, toolID)
	return o
}

// Trace is Classify that also reports the name of the rule that matched, or "fallback".
func Trace(raw []byte, toolID string) (o Outcome, rule string) {
	defer func() {
		if r := recover(); r != nil {
			o, rule = Unknown{RawPayload: copyRaw(raw)}, "fallback"
		}
	}()
	s, ok := parseShape(raw)
	if !ok {
		return Unknown{RawPayload: copyRaw(raw)}, "fallback"
	}
	for _, r := range rules {
		if out, ok := r.match(s); ok {
			if succ, isSucc := out.(Success); isSucc {
				succ.ToolID = toolID
				out = succ
			}
			return out, r.Name
		}
	}
	return Unknown{RawPayload: copyRaw(raw)}, "fallback"
}

// ClassifyValue classifies an already-decoded value such as map[string]any.
func ClassifyValue(v any, toolID string) Outcome {
	b, err := json.Marshal(v)
	if err != nil {
		return Unknown{}
	}
	return Classify(b, toolID)
}

func parseShape(raw []byte) (*shape, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	s := &shape{raw: trimmed, fields: fields}
	if v, present := fields["error"]; present {
		msg, isString := v.(string)
		if !isString {
			return nil, false
		}
		s.hasError = true
		s.errMsg = msg
	}
	return s, true
}

func (s *shape) stringField(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := s.fields[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// intField returns the first key holding a count: a non-negative number within int range.
func (s *shape) intField(keys ...string) (int, bool) {
	for _, k := range keys {
		num, ok := s.fields[k].(json.Number)
		if !ok {
			continue
		}
		if i, err := strconv.ParseInt(num.String(), 10, 0); err == nil {
			if i >= 0 {
				return int(i), true
			}
			continue
		}
		if f, err := num.Float64(); err == nil && f >= 0 && f < float64(math.MaxInt) {
			return int(f), true
		}
	}
	return 0, false
}

func copyRaw(raw []byte) []byte {
	if raw == nil {
		return nil
	}
	return append([]byte(nil), raw...)
}
