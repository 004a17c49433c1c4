package models

import "testing"

func TestResolutionPrecedence_MostSpecificFirst(t *testing.T) {
	got := ResolutionPrecedence(ScopeTypeMerchant)
	expected := []ScopeType{
		ScopeTypeIndividual,
		ScopeTypeContract,
		ScopeTypeSegment,
		ScopeTypeGroup,
		ScopeTypeMerchant,
		ScopeTypeDeployment,
		ScopeTypeGlobal,
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %d candidates, got %d (%v)", len(expected), len(got), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("position %d: expected %s, got %s", i, expected[i], got[i])
		}
	}
}

func TestResolutionPrecedence_DeduplicatesRequestedType(t *testing.T) {
	cases := []ScopeType{ScopeTypeIndividual, ScopeTypeContract, ScopeTypeGlobal, ScopeTypeDeployment}
	for _, requested := range cases {
		got := ResolutionPrecedence(requested)
		seen := make(map[ScopeType]int)
		for _, s := range got {
			seen[s]++
		}
		for s, n := range seen {
			if n > 1 {
				t.Fatalf("requested=%s: scope type %s appears %d times in %v", requested, s, n, got)
			}
		}
		// Global always terminates the walk.
		if got[len(got)-1] != ScopeTypeGlobal {
			t.Fatalf("requested=%s: expected global last, got %v", requested, got)
		}
	}
}

func TestResolutionPrecedence_IndividualAlwaysWinsOverGlobal(t *testing.T) {
	for _, requested := range []ScopeType{ScopeTypeMerchant, ScopeTypeAgent, ScopeTypeClient, ScopeTypeGlobal} {
		got := ResolutionPrecedence(requested)
		if got[0] != ScopeTypeIndividual {
			t.Fatalf("requested=%s: expected individual first, got %v", requested, got)
		}
	}
}
