package cipher

import (
	"context"
	"errors"
	"testing"
)

func TestPipelineExecution(t *testing.T) {
	tests := []struct {
		name       string
		operations []OperationConfig
		input      string
		expected   string
	}{
		{
			name:       "single operation",
			operations: []OperationConfig{{Name: "base64_encode"}},
			input:      "hello",
			expected:   "aGVsbG8=",
		},
		{
			name: "double encoding",
			operations: []OperationConfig{
				{Name: "base64_encode"},
				{Name: "base64_encode"},
			},
			input:    "test",
			expected: "ZEdWemRBPT0=",
		},
		{
			name: "hex then base64",
			operations: []OperationConfig{
				{Name: "hex_encode"},
				{Name: "base64_encode"},
			},
			input:    "hi",
			expected: "Njg2OQ==",
		},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := &Pipeline{Operations: tt.operations, Reversible: true}

			result, err := pipeline.Execute(ctx, []byte(tt.input))
			if err != nil {
				t.Fatalf("pipeline execution failed: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, string(result))
			}
		})
	}
}

func TestPipelineArmoredCipherReverses(t *testing.T) {
	params := map[string]any{ParamKey: testKey(), ParamRuns: 3, ParamThreads: 4}
	pipeline := &Pipeline{
		Operations: []OperationConfig{
			{Name: "fbc_encrypt", Parameters: params},
			{Name: "base64_encode"},
		},
		Reversible: true,
	}

	ctx := context.Background()
	armored, err := pipeline.Execute(ctx, []byte("armored secret"))
	if err != nil {
		t.Fatalf("forward pipeline failed: %v", err)
	}

	reversed, err := pipeline.Reverse()
	if err != nil {
		t.Fatalf("reverse failed: %v", err)
	}
	if reversed.Operations[0].Name != "base64_decode" || reversed.Operations[1].Name != "fbc_decrypt" {
		t.Fatalf("unexpected reversed steps %+v", reversed.Operations)
	}

	plain, err := reversed.Execute(ctx, armored)
	if err != nil {
		t.Fatalf("reverse pipeline failed: %v", err)
	}
	if string(plain) != "armored secret" {
		t.Fatalf("roundtrip failed: got %q", plain)
	}
}

func TestPipelineErrors(t *testing.T) {
	ctx := context.Background()

	unknown := &Pipeline{Operations: []OperationConfig{{Name: "rot13"}}}
	if _, err := unknown.Execute(ctx, []byte("x")); err == nil {
		t.Fatal("expected error for unknown operation")
	}

	notReversible := &Pipeline{Operations: []OperationConfig{{Name: "base64_encode"}}}
	if _, err := notReversible.Reverse(); err == nil {
		t.Fatal("expected error reversing a non-reversible pipeline")
	}

	reg := NewRegistry()
	_ = reg.Register(newMock("one_way", OperationTypeEncode))
	oneWay := &Pipeline{Operations: []OperationConfig{{Name: "one_way"}}, Reversible: true}
	if _, err := oneWay.ReverseWith(reg); err == nil {
		t.Fatal("expected error for operation without inverse")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	p := &Pipeline{Operations: []OperationConfig{{Name: "hex_encode"}}}
	if _, err := p.Execute(cancelled, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
