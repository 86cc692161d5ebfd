package extmem

import "testing"

func TestFileModeHas(t *testing.T) {
	m := ModeCreat | ModeDirect
	if !m.Has(ModeCreat) || !m.Has(ModeDirect) {
		t.Error("expected both set bits to report Has")
	}
	if m.Has(ModeSync) {
		t.Error("unset bit should not report Has")
	}
}

func TestFileModeStringEmpty(t *testing.T) {
	var m FileMode
	if m.String() != "NONE" {
		t.Errorf("String() = %q, want NONE", m.String())
	}
}

func TestFileModeStringListsAllSetFlags(t *testing.T) {
	m := ModeCreat | ModeRdwr
	s := m.String()
	if s != "CREAT|RDWR" {
		t.Errorf("String() = %q, want CREAT|RDWR", s)
	}
}
