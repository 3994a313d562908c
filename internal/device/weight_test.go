package device

import (
	"encoding/json"
	"testing"
)

func TestWeightFromFloat(t *testing.T) {
	tests := []struct {
		in        float64
		wantKind  WeightKind
		wantFloat float64
	}{
		{-1, WeightUnassigned, -1},
		{-7.5, WeightUnassigned, -1},
		{0, WeightNone, 0},
		{12.5, WeightValue, 12.5},
	}

	for _, tt := range tests {
		w := WeightFromFloat(tt.in)
		if w.Kind() != tt.wantKind {
			t.Errorf("WeightFromFloat(%v).Kind() = %v, want %v", tt.in, w.Kind(), tt.wantKind)
		}
		if w.Float() != tt.wantFloat {
			t.Errorf("WeightFromFloat(%v).Float() = %v, want %v", tt.in, w.Float(), tt.wantFloat)
		}
	}
}

func TestWeight_ZeroValueIsUnassigned(t *testing.T) {
	var w Weight
	if !w.IsUnassigned() {
		t.Error("zero Weight should be unassigned")
	}
	if _, ok := w.Value(); ok {
		t.Error("zero Weight should carry no value")
	}
}

func TestWeight_Value(t *testing.T) {
	v, ok := WeightOf(3.25).Value()
	if !ok || v != 3.25 {
		t.Errorf("Value() = (%v, %v), want (3.25, true)", v, ok)
	}
	if _, ok := NoWeight().Value(); ok {
		t.Error("NoWeight().Value() ok = true")
	}
}

func TestWeight_String(t *testing.T) {
	if got := UnassignedWeight().String(); got != "unassigned" {
		t.Errorf("String() = %q", got)
	}
	if got := NoWeight().String(); got != "none" {
		t.Errorf("String() = %q", got)
	}
	if got := WeightOf(12.5).String(); got != "12.5" {
		t.Errorf("String() = %q", got)
	}
}

func TestWeight_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		W Weight `json:"w"`
	}{UnassignedWeight()})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"w":-1}` {
		t.Errorf("Marshal() = %s, want {\"w\":-1}", data)
	}

	var decoded struct {
		W Weight `json:"w"`
	}
	if err := json.Unmarshal([]byte(`{"w":0}`), &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !decoded.W.IsNone() {
		t.Errorf("decoded weight = %v, want none", decoded.W)
	}

	if err := json.Unmarshal([]byte(`{"w":"heavy"}`), &decoded); err == nil {
		t.Error("Unmarshal() of a string should fail")
	}
}
