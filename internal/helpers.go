package internal

import "strconv"

// Value returns the value stored under key with Session.Set, or the zero
// value of T when it is missing or has another type.
func Value[T any](s *Session, key any) T {
	if v, ok := s.Get(key); ok {
		if t, ok := v.(T); ok {
			return t
		}
	}
	var zero T
	return zero
}

// Query returns a typed query parameter, or the zero value of T.
func Query[T ~string | ~int | ~int64 | ~float64 | ~bool](s *Session, name string) T {
	v, _ := convertParam[T](rawQuery(s, name))
	return v
}

// QueryDefault retrieves a typed query parameter with a default value.
// Returns defaultValue if the parameter is empty or cannot be parsed.
func QueryDefault[T ~string | ~int | ~int64 | ~float64 | ~bool](s *Session, name string, defaultValue T) T {
	raw := rawQuery(s, name)
	if raw == "" {
		return defaultValue
	}
	v, ok := convertParam[T](raw)
	if !ok {
		return defaultValue
	}
	return v
}

func rawQuery(s *Session, name string) string {
	req := s.Request()
	if req == nil {
		return ""
	}
	return req.Query.Get(name)
}

// convertParam converts a raw string to the target type T.
func convertParam[T ~string | ~int | ~int64 | ~float64 | ~bool](raw string) (T, bool) {
	var zero T
	var out any
	switch any(zero).(type) {
	case string:
		out = raw
	case int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return zero, false
		}
		out = v
	case int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return zero, false
		}
		out = v
	case float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return zero, false
		}
		out = v
	case bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return zero, false
		}
		out = v
	default:
		return zero, false
	}
	t, ok := out.(T)
	return t, ok
}
