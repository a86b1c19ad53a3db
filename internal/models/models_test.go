package models

import "testing"

func TestAssemblyFlagStorageRoundTrip(t *testing.T) {
	for _, flag := range []AssemblyFlag{Assembly, NotAssembly, AssemblyUnknown} {
		if got := FlagFromNullable(flag.NullableInt()); got != flag {
			t.Errorf("round trip of %v = %v", flag, got)
		}
	}
	if Assembly.NullableInt() == nil || *Assembly.NullableInt() != 1 {
		t.Error("Assembly must encode as 1")
	}
	if NotAssembly.NullableInt() == nil || *NotAssembly.NullableInt() != 0 {
		t.Error("NotAssembly must encode as 0")
	}
	if AssemblyUnknown.NullableInt() != nil {
		t.Error("AssemblyUnknown must encode as NULL")
	}
}

func TestAssemblyFlagString(t *testing.T) {
	if Assembly.String() != "assembly" || NotAssembly.String() != "not_assembly" || AssemblyUnknown.String() != "unknown" {
		t.Errorf("flag names = %v/%v/%v", Assembly, NotAssembly, AssemblyUnknown)
	}
}

func TestUniqueKey(t *testing.T) {
	if got := UniqueKey("JOB-TEST", 1); got != "JOB-TEST|1" {
		t.Errorf("UniqueKey = %q", got)
	}
}
