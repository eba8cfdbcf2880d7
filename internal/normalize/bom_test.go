package normalize

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{name: "with BOM", input: []byte("\xEF\xBB\xBFhello"), want: []byte("hello")},
		{name: "without BOM", input: []byte("hello"), want: []byte("hello")},
		{name: "empty", input: []byte{}, want: []byte{}},
		{name: "BOM only", input: []byte("\xEF\xBB\xBF"), want: []byte{}},
		{name: "shorter than BOM", input: []byte("hi"), want: []byte("hi")},
		{name: "partial BOM kept", input: []byte("\xEF\xBBx"), want: []byte("\xEF\xBBx")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewBOMSkippingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBOMSkippingReader_OneByteReads(t *testing.T) {
	r := NewBOMSkippingReader(iotest.OneByteReader(bytes.NewReader([]byte("\xEF\xBB\xBFa,b\n1,2\n"))))
	got, err := io.ReadAll(iotest.OneByteReader(r))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "a,b\n1,2\n" {
		t.Errorf("got %q", got)
	}
}
