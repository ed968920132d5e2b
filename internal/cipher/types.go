package cipher

import (
	"context"
	"fmt"
)

// OperationType groups operations by what they do to their input.
type OperationType string

const (
	OperationTypeEncode  OperationType = "encode"
	OperationTypeDecode  OperationType = "decode"
	OperationTypeEncrypt OperationType = "encrypt"
	OperationTypeDecrypt OperationType = "decrypt"
)

// Operation is a single named transformation.
type Operation interface {
	Name() string
	Type() OperationType
	Description() string

	// Execute applies the operation. params carries per-call settings such as
	// the key or round count; operations ignore parameters they do not use.
	Execute(ctx context.Context, input []byte, params map[string]any) ([]byte, error)

	// Reverse returns the inverse operation if there is one.
	Reverse() (Operation, bool)
}

// OperationConfig names one pipeline step and its parameters.
type OperationConfig struct {
	Name       string         `json:"name" yaml:"name"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Pipeline is an ordered chain of operations.
type Pipeline struct {
	Operations []OperationConfig `json:"operations" yaml:"operations"`
	Reversible bool              `json:"reversible" yaml:"reversible"`
}

// Execute runs the pipeline against the default registry.
func (p *Pipeline) Execute(ctx context.Context, input []byte) ([]byte, error) {
	return p.ExecuteWith(ctx, defaultRegistry, input)
}

// ExecuteWith runs the pipeline, resolving operation names in reg. The
// context is checked between steps.
func (p *Pipeline) ExecuteWith(ctx context.Context, reg *Registry, input []byte) ([]byte, error) {
	result := input
	for i, step := range p.Operations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		op, ok := reg.Get(step.Name)
		if !ok {
			return nil, fmt.Errorf("unknown operation at step %d: %s", i, step.Name)
		}
		out, err := op.Execute(ctx, result, step.Parameters)
		if err != nil {
			return nil, fmt.Errorf("operation %s failed at step %d: %w", step.Name, i, err)
		}
		result = out
	}
	return result, nil
}

// Reverse builds the inverse pipeline against the default registry.
func (p *Pipeline) Reverse() (*Pipeline, error) {
	return p.ReverseWith(defaultRegistry)
}

// ReverseWith builds the inverse pipeline: steps in the opposite order, each
// replaced by its inverse and keeping its parameters.
func (p *Pipeline) ReverseWith(reg *Registry) (*Pipeline, error) {
	if !p.Reversible {
		return nil, fmt.Errorf("pipeline is not reversible")
	}

	n := len(p.Operations)
	reversed := &Pipeline{
		Operations: make([]OperationConfig, n),
		Reversible: true,
	}
	for i, step := range p.Operations {
		op, ok := reg.Get(step.Name)
		if !ok {
			return nil, fmt.Errorf("unknown operation: %s", step.Name)
		}
		inverse, ok := op.Reverse()
		if !ok {
			return nil, fmt.Errorf("operation %s is not reversible", step.Name)
		}
		reversed.Operations[n-1-i] = OperationConfig{
			Name:       inverse.Name(),
			Parameters: step.Parameters,
		}
	}
	return reversed, nil
}

// BaseOperation implements the descriptive half of Operation.
type BaseOperation struct {
	NameValue        string
	TypeValue        OperationType
	DescriptionValue string
	ReverseOp        Operation
}

func (b *BaseOperation) Name() string {
	return b.NameValue
}

func (b *BaseOperation) Type() OperationType {
	return b.TypeValue
}

func (b *BaseOperation) Description() string {
	return b.DescriptionValue
}

func (b *BaseOperation) Reverse() (Operation, bool) {
	if b.ReverseOp == nil {
		return nil, false
	}
	return b.ReverseOp, true
}
