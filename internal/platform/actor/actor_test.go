package actor

import (
	"errors"
	"testing"
)

func TestActor_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		a       Actor
		wantErr bool
	}{
		{"customer", Actor{ID: "c-1", Role: RoleCustomer}, false},
		{"agent", Actor{ID: "a-1", Role: RoleAgent}, false},
		{"system", System, false},
		{"missing id", Actor{Role: RoleAgent}, true},
		{"unknown role", Actor{ID: "x", Role: "admin"}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.a.Validate()
			if tc.wantErr && !errors.Is(err, ErrInvalidActor) {
				t.Errorf("Validate() = %v, want ErrInvalidActor", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}
