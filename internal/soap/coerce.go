package soap

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateTime layouts devices actually emit, tried in order. The first is
// full RFC 3339; the naive forms have no zone and parse as UTC.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// coerceValue converts an output argument's text to the native type its
// state variable declares. The mapping follows the UPnP scalar type set:
// the integer names yield int64, the floating names float64, booleans
// bool, bin.base64 []byte, dateTime time.Time, and the string names pass
// through unchanged.
func coerceValue(dataType, text string) (any, error) {
	switch dataType {
	case "ui1", "ui2", "ui4", "i1", "i2", "i4", "int":
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid %s", text, dataType)
		}
		return n, nil

	case "r4", "r8", "number", "fixed.14.4", "float":
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid %s", text, dataType)
		}
		return f, nil

	case "char", "string", "uuid":
		return text, nil

	case "boolean":
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "1", "true", "yes":
			return true, nil
		case "0", "false", "no":
			return false, nil
		default:
			return nil, fmt.Errorf("%q is not a valid boolean", text)
		}

	case "bin.base64":
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("%q is not valid base64: %w", text, err)
		}
		return data, nil

	case "dateTime":
		trimmed := strings.TrimSpace(text)
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("%q is not a valid dateTime", text)

	default:
		return nil, fmt.Errorf("unknown UPnP data type %q", dataType)
	}
}
