package presto

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// valueToSQL renders a parameter as a SQL literal.
func valueToSQL(v driver.Value) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case []byte:
		return "X'" + hex.EncodeToString(val) + "'", nil
	case time.Time:
		return "TIMESTAMP '" + val.Format("2006-01-02 15:04:05.000") + "'", nil
	case time.Duration:
		return "INTERVAL '" + formatIntervalDayToSecond(val) + "' DAY TO SECOND", nil
	default:
		return "", fmt.Errorf("unsupported parameter type: %T", v)
	}
}

// interpolateParams substitutes ? placeholders outside single-quoted literals.
func interpolateParams(query string, args []driver.Value) (string, error) {
	if len(args) == 0 {
		return query, nil
	}

	var buf strings.Builder
	buf.Grow(len(query) + len(args)*8)
	argIdx := 0
	inString := false

	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'' && inString && i+1 < len(query) && query[i+1] == '\'':
			buf.WriteString("''")
			i++
		case ch == '\'':
			inString = !inString
			buf.WriteByte(ch)
		case ch == '?' && !inString:
			if argIdx >= len(args) {
				return "", fmt.Errorf("not enough arguments: query has more placeholders than the %d provided arguments", len(args))
			}
			literal, err := valueToSQL(args[argIdx])
			if err != nil {
				return "", err
			}
			buf.WriteString(literal)
			argIdx++
		default:
			buf.WriteByte(ch)
		}
	}

	if argIdx != len(args) {
		return "", fmt.Errorf("too many arguments: %d provided but only %d placeholders in query", len(args), argIdx)
	}
	return buf.String(), nil
}

// normalizeType lower-cases a display type and drops its parameters:
// "varchar(255)" is "varchar", "timestamp(3) with time zone" is
// "timestamp with time zone" and "array(integer)" is "array".
func normalizeType(t string) string {
	var b strings.Builder
	depth := 0
	for _, r := range strings.ToLower(t) {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// scanTypeForPrestoType is the Go type convertValue produces for a column type.
func scanTypeForPrestoType(prestoType string) reflect.Type {
	switch normalizeType(prestoType) {
	case "bigint", "integer", "smallint", "tinyint":
		return reflect.TypeOf(int64(0))
	case "double", "real":
		return reflect.TypeOf(float64(0))
	case "boolean":
		return reflect.TypeOf(false)
	case "varbinary":
		return reflect.TypeOf([]byte(nil))
	case "date", "timestamp", "timestamp with time zone", "time", "time with time zone":
		return reflect.TypeOf(time.Time{})
	case "interval day to second":
		return reflect.TypeOf(time.Duration(0))
	default:
		// Strings, decimals, JSON text of composites and unknown types.
		return reflect.TypeOf("")
	}
}

// convertValue turns a decoded cell into a driver.Value. Arrays, maps and rows
// are returned as JSON text for NullSlice, NullMap and NullRow to scan.
func convertValue(val any, prestoType string) (driver.Value, error) {
	if val == nil {
		return nil, nil
	}

	norm := normalizeType(prestoType)
	switch norm {
	case "bigint", "integer", "smallint", "tinyint":
		switch v := val.(type) {
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case json.Number:
			return v.Int64()
		}
		return nil, fmt.Errorf("cannot convert %T to int64 for type %s", val, prestoType)

	case "double", "real":
		switch v := val.(type) {
		case float64:
			return v, nil
		case json.Number:
			return v.Float64()
		case string:
			// NaN and Infinity arrive as strings.
			return strconv.ParseFloat(v, 64)
		}
		return nil, fmt.Errorf("cannot convert %T to float64 for type %s", val, prestoType)

	case "boolean":
		if b, ok := val.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cannot convert %T to bool for type %s", val, prestoType)

	case "varchar", "char":
		if s, ok := val.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", val), nil

	case "decimal":
		switch v := val.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case json.Number:
			return v.String(), nil
		}
		return fmt.Sprintf("%v", val), nil

	case "varbinary":
		switch v := val.(type) {
		case []byte:
			return v, nil
		case string:
			return base64.StdEncoding.DecodeString(v)
		}
		return nil, fmt.Errorf("cannot convert %T to varbinary", val)

	case "interval year to month":
		if s, ok := val.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("cannot convert %T to %s", val, norm)
	}

	if parse, ok := temporalParsers[norm]; ok {
		s, isString := val.(string)
		if !isString {
			return nil, fmt.Errorf("cannot convert %T to %s", val, norm)
		}
		return parse(s)
	}

	b, err := json.Marshal(jsonCompatible(val))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

var temporalParsers = map[string]func(string) (driver.Value, error){
	"date":                     func(s string) (driver.Value, error) { return time.Parse("2006-01-02", s) },
	"timestamp":                func(s string) (driver.Value, error) { return parseTimestamp(s) },
	"timestamp with time zone": func(s string) (driver.Value, error) { return parseTimestampWithTZ(s) },
	"time":                     func(s string) (driver.Value, error) { return parseTime(s) },
	"time with time zone":      func(s string) (driver.Value, error) { return parseTimeWithTZ(s) },
	"interval day to second":   func(s string) (driver.Value, error) { return parseIntervalDayToSecond(s) },
}

// jsonCompatible rewrites map[any]any values, which encoding/json rejects,
// into map[string]any.
func jsonCompatible(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[mapKeyString(k)] = jsonCompatible(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonCompatible(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonCompatible(item)
		}
		return out
	default:
		return v
	}
}

func mapKeyString(k any) string {
	switch key := k.(type) {
	case string:
		return key
	case VarbinaryKey:
		return string(key)
	case int64:
		return strconv.FormatInt(key, 10)
	case float64:
		return strconv.FormatFloat(key, 'f', -1, 64)
	default:
		return fmt.Sprint(k)
	}
}

func parseWithLayouts(kind, s string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %s %q", kind, s)
}

func parseTimestamp(s string) (time.Time, error) {
	return parseWithLayouts("timestamp", s, []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	})
}

func parseTimestampWithTZ(s string) (time.Time, error) {
	return parseWithLayouts("timestamp with time zone", s, []string{
		"2006-01-02 15:04:05.999999999 MST",
		"2006-01-02 15:04:05.999999999 -07:00",
		"2006-01-02 15:04:05 MST",
		"2006-01-02 15:04:05 -07:00",
	})
}

func parseTime(s string) (time.Time, error) {
	return parseWithLayouts("time", s, []string{
		"15:04:05.999999999",
		"15:04:05",
	})
}

func parseTimeWithTZ(s string) (time.Time, error) {
	return parseWithLayouts("time with time zone", s, []string{
		"15:04:05.999999999 MST",
		"15:04:05.999999999 -07:00",
		"15:04:05 MST",
		"15:04:05 -07:00",
	})
}

// parseIntervalDayToSecond parses "D HH:MM:SS.fff"; a leading minus negates
// the whole interval.
func parseIntervalDayToSecond(s string) (time.Duration, error) {
	daysPart, clock, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return 0, fmt.Errorf("cannot parse interval day to second %q", s)
	}
	negative := strings.HasPrefix(daysPart, "-")
	days, err := strconv.ParseInt(strings.TrimPrefix(daysPart, "-"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse interval day to second %q: %w", s, err)
	}

	fields := strings.Split(clock, ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("cannot parse interval day to second %q", s)
	}
	hours, errH := strconv.ParseInt(fields[0], 10, 64)
	minutes, errM := strconv.ParseInt(fields[1], 10, 64)
	secText, fracText, _ := strings.Cut(fields[2], ".")
	seconds, errS := strconv.ParseInt(secText, 10, 64)
	if errH != nil || errM != nil || errS != nil {
		return 0, fmt.Errorf("cannot parse interval day to second %q", s)
	}
	var nanos int64
	if fracText != "" {
		if len(fracText) > 9 {
			fracText = fracText[:9]
		}
		nanos, err = strconv.ParseInt(fracText+strings.Repeat("0", 9-len(fracText)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse interval day to second %q: %w", s, err)
		}
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(nanos)
	if negative {
		d = -d
	}
	return d, nil
}

// formatIntervalDayToSecond is the inverse of parseIntervalDayToSecond with
// millisecond precision.
func formatIntervalDayToSecond(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	millis := d / time.Millisecond
	return fmt.Sprintf("%s%d %02d:%02d:%02d.%03d", sign, days, hours, minutes, seconds, millis)
}
