package main

import (
	"strings"
	"testing"

	"github.com/torresjeff/pvprtmp/amf"
)

func TestReadInput(t *testing.T) {
	got, err := readInput(nil, strings.NewReader("02 0001\n78\n"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "\x02\x00\x01x" {
		t.Errorf("expected input to be % x, but got % x", "\x02\x00\x01x", got)
	}
	got, err = readInput([]string{"0101", "01"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 bytes from the arguments, but got %d", len(got))
	}
	if _, err := readInput([]string{"zz"}, nil); err == nil {
		t.Errorf("expected an error for non hex input")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		format string
		input  string
		want   []interface{}
	}{
		{"amf0 sequence", "amf0", "0200017800400000000000000005", []interface{}{"x", 2.0, nil}},
		{"amf3 sequence", "amf3", "0603610401", []interface{}{"a", int32(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := readInput([]string{tt.input}, nil)
			if err != nil {
				t.Fatal(err)
			}
			values, err := decode(tt.format, input)
			if err != nil {
				t.Fatal(err)
			}
			if len(values) != len(tt.want) {
				t.Fatalf("expected %d values, but got %d", len(tt.want), len(values))
			}
			for i, v := range values {
				if got := amf.ToNative(v); got != tt.want[i] {
					t.Errorf("expected value %d to be %v, but got %v", i, tt.want[i], got)
				}
			}
		})
	}
	if _, err := decode("amf9", nil); err == nil {
		t.Errorf("expected an error for an unknown format")
	}
}
