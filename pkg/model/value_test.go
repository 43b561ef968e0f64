package model

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValueWireFormat(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"int", IntValue(-42), "-42"},
		{"int_min", IntValue(math.MinInt32), "-2147483648"},
		{"uint", UintValue(math.MaxUint64), "18446744073709551615"},
		{"float", FloatValue(1.5), "1.5"},
		{"nan", FloatValue(math.NaN()), "nan"},
		{"pos_inf", FloatValue(math.Inf(1)), "inf"},
		{"neg_inf", FloatValue(math.Inf(-1)), "-inf"},
		{"bool", BoolValue(true), "true"},
		{"null", NullValue(), "null"},
		{"array", ArrayValue(FloatValue(1.5), FloatValue(-2.5)), "{1.5;-2.5}"},
		{"empty_array", ArrayValue(), "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatFloatSurvivesRoundTrip(t *testing.T) {
	// 17 significant digits reproduce any float64 exactly.
	for _, f := range []float64{math.Pi, 1e-300, -0.1, 3.0000000000000004} {
		got, err := parseFloatToken(FormatFloat(f))
		if err != nil {
			t.Fatalf("parse back %v: %v", f, err)
		}
		if got != f {
			t.Errorf("round trip %v -> %v", f, got)
		}
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("-2147483648", CTypeInt, false)
	if err != nil {
		t.Fatalf("ParseValue failed: %v", err)
	}
	if v.Kind != KindInt || v.Int != math.MinInt32 {
		t.Errorf("parsed: %+v", v)
	}

	v, err = ParseValue("nan", CTypeDouble, false)
	if err != nil {
		t.Fatalf("ParseValue failed: %v", err)
	}
	if v.Kind != KindFloat || !math.IsNaN(v.Float) || v.Width != 64 {
		t.Errorf("parsed: %+v", v)
	}

	v, err = ParseValue("inf", CTypeFloat, false)
	if err != nil {
		t.Fatalf("ParseValue failed: %v", err)
	}
	if v.Width != 32 || !math.IsInf(v.Float, 1) {
		t.Errorf("parsed: %+v", v)
	}

	v, err = ParseValue("null", CTypeInt, true)
	if err != nil {
		t.Fatalf("ParseValue failed: %v", err)
	}
	if v.Kind != KindNull {
		t.Errorf("parsed: %+v", v)
	}

	if _, err := ParseValue("abc", CTypeInt, false); err == nil {
		t.Error("non-numeric token accepted for int")
	}
	if _, err := ParseValue("-1", CTypeUnsignedInt, false); err == nil {
		t.Error("negative token accepted for unsigned")
	}
}

func TestMigrationErrorContextAndChain(t *testing.T) {
	cause := errors.New("exit status 1")
	err := NewError(ErrKindCompilation, "gcc failed", cause).
		WithUnit("math_ops").
		WithPhase("baseline")

	msg := err.Error()
	for _, want := range []string{"compilation", "gcc failed", "math_ops", "baseline", "exit status 1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q: %s", want, msg)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable via errors.Is")
	}
	if !errors.Is(err, NewError(ErrKindCompilation, "", nil)) {
		t.Error("kind equality not honored by errors.Is")
	}
	if KindOf(err) != ErrKindCompilation {
		t.Errorf("KindOf: %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != ErrKindInternal {
		t.Error("unclassified error did not default to internal")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewError(ErrKindValidation, "mismatch", nil)) {
		t.Error("validation rejection not retryable")
	}
	if !IsRetryable(NewError(ErrKindTimeout, "deadline", nil)) {
		t.Error("timeout not retryable")
	}
	if IsRetryable(NewError(ErrKindCycle, "cycle", nil)) {
		t.Error("cycle error retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("unclassified error retryable")
	}
}

func TestStatusTerminality(t *testing.T) {
	for _, s := range []ConversionStatus{StatusConverted, StatusFailed, StatusSkipped} {
		if !s.IsTerminal() {
			t.Errorf("%s not terminal", s)
		}
	}
	for _, s := range []ConversionStatus{StatusPending, StatusReady, StatusInProgress} {
		if s.IsTerminal() {
			t.Errorf("%s terminal", s)
		}
	}
}
