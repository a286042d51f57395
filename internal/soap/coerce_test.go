package soap

import (
	"bytes"
	"testing"
	"time"
)

func TestCoerceValue_Integers(t *testing.T) {
	for _, dataType := range []string{"ui1", "ui2", "ui4", "i1", "i2", "i4", "int"} {
		t.Run(dataType, func(t *testing.T) {
			value, err := coerceValue(dataType, "42")
			if err != nil {
				t.Fatalf("coerceValue(%s, 42) error = %v", dataType, err)
			}
			n, ok := value.(int64)
			if !ok {
				t.Fatalf("coerceValue(%s, 42) = %T, want int64", dataType, value)
			}
			if n != 42 {
				t.Errorf("coerceValue(%s, 42) = %d", dataType, n)
			}
		})
	}

	if value, err := coerceValue("i4", "-17"); err != nil || value.(int64) != -17 {
		t.Errorf("coerceValue(i4, -17) = %v, %v", value, err)
	}
}

func TestCoerceValue_Floats(t *testing.T) {
	for _, dataType := range []string{"r4", "r8", "number", "fixed.14.4", "float"} {
		t.Run(dataType, func(t *testing.T) {
			value, err := coerceValue(dataType, "3.25")
			if err != nil {
				t.Fatalf("coerceValue(%s, 3.25) error = %v", dataType, err)
			}
			f, ok := value.(float64)
			if !ok {
				t.Fatalf("coerceValue(%s) = %T, want float64", dataType, value)
			}
			if f != 3.25 {
				t.Errorf("coerceValue(%s, 3.25) = %v", dataType, f)
			}
		})
	}
}

func TestCoerceValue_Strings(t *testing.T) {
	for _, dataType := range []string{"char", "string", "uuid"} {
		value, err := coerceValue(dataType, "hello there")
		if err != nil {
			t.Fatalf("coerceValue(%s) error = %v", dataType, err)
		}
		if value != "hello there" {
			t.Errorf("coerceValue(%s) = %v", dataType, value)
		}
	}
}

func TestCoerceValue_Booleans(t *testing.T) {
	trueValues := []string{"1", "true", "yes", "TRUE", "Yes"}
	for _, text := range trueValues {
		value, err := coerceValue("boolean", text)
		if err != nil || value != true {
			t.Errorf("coerceValue(boolean, %q) = %v, %v; want true", text, value, err)
		}
	}

	falseValues := []string{"0", "false", "no", "False", "NO"}
	for _, text := range falseValues {
		value, err := coerceValue("boolean", text)
		if err != nil || value != false {
			t.Errorf("coerceValue(boolean, %q) = %v, %v; want false", text, value, err)
		}
	}

	if _, err := coerceValue("boolean", "maybe"); err == nil {
		t.Error("coerceValue(boolean, maybe) succeeded, want error")
	}
}

func TestCoerceValue_Base64(t *testing.T) {
	value, err := coerceValue("bin.base64", "aGVsbG8=")
	if err != nil {
		t.Fatalf("coerceValue(bin.base64) error = %v", err)
	}
	data, ok := value.([]byte)
	if !ok {
		t.Fatalf("coerceValue(bin.base64) = %T, want []byte", value)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Errorf("coerceValue(bin.base64) = %q", data)
	}

	if _, err := coerceValue("bin.base64", "!!!not base64!!!"); err == nil {
		t.Error("invalid base64 succeeded, want error")
	}
}

func TestCoerceValue_DateTime(t *testing.T) {
	tests := []struct {
		text string
		want time.Time
	}{
		{"2025-08-05T10:30:00Z", time.Date(2025, 8, 5, 10, 30, 0, 0, time.UTC)},
		{"2025-08-05T10:30:00", time.Date(2025, 8, 5, 10, 30, 0, 0, time.UTC)},
		{"2025-08-05", time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			value, err := coerceValue("dateTime", tt.text)
			if err != nil {
				t.Fatalf("coerceValue(dateTime, %q) error = %v", tt.text, err)
			}
			got, ok := value.(time.Time)
			if !ok {
				t.Fatalf("coerceValue(dateTime) = %T, want time.Time", value)
			}
			if !got.Equal(tt.want) {
				t.Errorf("coerceValue(dateTime, %q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}

	if _, err := coerceValue("dateTime", "yesterday-ish"); err == nil {
		t.Error("invalid dateTime succeeded, want error")
	}
}

func TestCoerceValue_Unparseable(t *testing.T) {
	tests := []struct {
		dataType string
		text     string
	}{
		{"ui2", "not-a-number"},
		{"ui2", ""},
		{"r8", "NaN-ish"},
		{"made-up-type", "anything"},
	}

	for _, tt := range tests {
		t.Run(tt.dataType+"/"+tt.text, func(t *testing.T) {
			if _, err := coerceValue(tt.dataType, tt.text); err == nil {
				t.Errorf("coerceValue(%s, %q) succeeded, want error", tt.dataType, tt.text)
			}
		})
	}
}
