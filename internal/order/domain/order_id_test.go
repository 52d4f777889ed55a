package domain

import (
	"errors"
	"testing"
)

func TestParseOrderID(t *testing.T) {
	cases := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "42", want: 42},
		{raw: " 7 ", want: 7},
		{raw: "", wantErr: true},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "abc", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseOrderID(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("%q: expected ErrInvalidOrder, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: expected %d, got %d (%v)", tc.raw, tc.want, got, err)
		}
	}
}
