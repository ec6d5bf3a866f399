package core

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestNewExtractReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("npi,first_name")...),
			expected: "npi,first_name",
		},
		{
			name:     "file without BOM",
			input:    []byte("npi,first_name"),
			expected: "npi,first_name",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM is invalid UTF-8",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: "��abc",
		},
		{
			name:     "latin-1 byte replaced",
			input:    []byte("Jos\xe9,Pe\xf1a"),
			expected: "Jos�,Pe�a",
		},
		{
			name:     "valid multi-byte kept",
			input:    []byte("José,Peña,東京"),
			expected: "José,Peña,東京",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(NewExtractReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestNewExtractReader_OneByteReads(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Peña\xff東")...)

	// Small source reads split multi-byte runes across calls.
	r := NewExtractReader(iotest.OneByteReader(bytes.NewReader(input)))
	result, err := io.ReadAll(iotest.OneByteReader(r))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "Peña�東" {
		t.Errorf("got %q", string(result))
	}
}

func TestNewExtractReader_PropagatesError(t *testing.T) {
	boom := errors.New("disk gone")
	src := io.MultiReader(bytes.NewReader([]byte("abc")), iotest.ErrReader(boom))

	result, err := io.ReadAll(NewExtractReader(src))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if string(result) != "abc" {
		t.Errorf("data before error = %q, want %q", string(result), "abc")
	}
}
