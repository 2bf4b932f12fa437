package session

import "testing"

func TestIdentityValidate(t *testing.T) {
	valid := Identity{SessionCode: "ABC123", PlayerID: "p-1", PlayerName: "Alice"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid identity, got %v", err)
	}

	cases := []struct {
		name     string
		identity Identity
	}{
		{"empty session code", Identity{PlayerID: "p-1", PlayerName: "Alice"}},
		{"short session code", Identity{SessionCode: "AB1", PlayerID: "p-1", PlayerName: "Alice"}},
		{"non-alphanumeric code", Identity{SessionCode: "ABC-12", PlayerID: "p-1", PlayerName: "Alice"}},
		{"missing player id", Identity{SessionCode: "ABC123", PlayerName: "Alice"}},
		{"missing player name", Identity{SessionCode: "ABC123", PlayerID: "p-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.identity.Validate(); err == nil {
				t.Fatalf("expected validation error for %+v", tc.identity)
			}
		})
	}
}

func TestIdentityValidateAcceptsLongerCodes(t *testing.T) {
	id := Identity{SessionCode: "abcDEF123456", PlayerID: "p-2", PlayerName: "Bob"}
	if err := id.Validate(); err != nil {
		t.Fatalf("expected valid identity, got %v", err)
	}
}
