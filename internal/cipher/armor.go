package cipher

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
)

// Armor names the text encoding wrapped around ciphertext.
type Armor string

const (
	ArmorNone   Armor = "none"
	ArmorHex    Armor = "hex"
	ArmorBase64 Armor = "base64"
)

var (
	hexPattern    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
)

// DetectionResult is the outcome of DetectArmor.
type DetectionResult struct {
	Armor      Armor   `json:"armor"`
	Confidence float64 `json:"confidence"`
	Operation  string  `json:"operation,omitempty"`
}

// DetectArmor guesses how input was armored. Hex wins over Base64 since
// every hex string is also valid Base64 text. Anything that does not decode
// cleanly is treated as raw ciphertext.
func DetectArmor(input []byte) DetectionResult {
	trimmed := bytes.Join(bytes.Fields(input), nil)
	if len(trimmed) == 0 {
		return DetectionResult{Armor: ArmorNone, Confidence: 1}
	}

	if hexPattern.Match(trimmed) && len(trimmed)%2 == 0 {
		confidence := 0.9
		// Short inputs are ambiguous.
		if len(trimmed) < 8 {
			confidence = 0.6
		}
		return DetectionResult{Armor: ArmorHex, Confidence: confidence, Operation: "hex_decode"}
	}

	if base64Pattern.Match(trimmed) && len(trimmed)%4 == 0 {
		if _, err := base64.StdEncoding.DecodeString(string(trimmed)); err == nil {
			return DetectionResult{Armor: ArmorBase64, Confidence: 0.85, Operation: "base64_decode"}
		}
	}

	return DetectionResult{Armor: ArmorNone, Confidence: 0.5}
}

// StripArmor removes detected armor from input. Raw input is returned as is.
func StripArmor(ctx context.Context, input []byte) ([]byte, Armor, error) {
	detection := DetectArmor(input)
	if detection.Operation == "" {
		return input, ArmorNone, nil
	}
	op, ok := GetOperation(detection.Operation)
	if !ok {
		return nil, detection.Armor, fmt.Errorf("no operation registered for %s armor", detection.Armor)
	}
	out, err := op.Execute(ctx, bytes.Join(bytes.Fields(input), nil), nil)
	if err != nil {
		return nil, detection.Armor, err
	}
	return out, detection.Armor, nil
}

// ApplyArmor wraps input in the named armor.
func ApplyArmor(ctx context.Context, input []byte, armor Armor) ([]byte, error) {
	switch armor {
	case ArmorNone, "":
		return input, nil
	case ArmorHex, ArmorBase64:
		op, ok := GetOperation(string(armor) + "_encode")
		if !ok {
			return nil, fmt.Errorf("no operation registered for %s armor", armor)
		}
		return op.Execute(ctx, input, nil)
	default:
		return nil, fmt.Errorf("unknown armor %q", armor)
	}
}

// RemoveArmor decodes input wrapped in the named armor.
func RemoveArmor(ctx context.Context, input []byte, armor Armor) ([]byte, error) {
	switch armor {
	case ArmorNone, "":
		return input, nil
	case ArmorHex, ArmorBase64:
		op, ok := GetOperation(string(armor) + "_decode")
		if !ok {
			return nil, fmt.Errorf("no operation registered for %s armor", armor)
		}
		return op.Execute(ctx, input, nil)
	default:
		return nil, fmt.Errorf("unknown armor %q", armor)
	}
}

// ParseArmor validates an armor name.
func ParseArmor(name string) (Armor, error) {
	switch Armor(name) {
	case "", ArmorNone:
		return ArmorNone, nil
	case ArmorHex, ArmorBase64:
		return Armor(name), nil
	default:
		return "", fmt.Errorf("unknown armor %q (want none, hex or base64)", name)
	}
}
