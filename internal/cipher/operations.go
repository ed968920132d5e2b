package cipher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Armor operations turn binary ciphertext into text and back. Decoders
// ignore surrounding whitespace so armored files may end with a newline.

// Base64EncodeOp encodes data as standard Base64
type Base64EncodeOp struct {
	BaseOperation
}

func (op *Base64EncodeOp) Execute(ctx context.Context, input []byte, params map[string]any) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(input)))
	base64.StdEncoding.Encode(out, input)
	return out, nil
}

// Base64DecodeOp decodes standard Base64 data
type Base64DecodeOp struct {
	BaseOperation
}

func (op *Base64DecodeOp) Execute(ctx context.Context, input []byte, params map[string]any) ([]byte, error) {
	trimmed := bytes.TrimSpace(input)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(out, trimmed)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	return out[:n], nil
}

// HexEncodeOp encodes bytes as lowercase hexadecimal
type HexEncodeOp struct {
	BaseOperation
}

func (op *HexEncodeOp) Execute(ctx context.Context, input []byte, params map[string]any) ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(input)))
	hex.Encode(out, input)
	return out, nil
}

// HexDecodeOp decodes hexadecimal text
type HexDecodeOp struct {
	BaseOperation
}

func (op *HexDecodeOp) Execute(ctx context.Context, input []byte, params map[string]any) ([]byte, error) {
	trimmed := bytes.TrimSpace(input)
	out := make([]byte, hex.DecodedLen(len(trimmed)))
	n, err := hex.Decode(out, trimmed)
	if err != nil {
		return nil, fmt.Errorf("hex decode failed: %w", err)
	}
	return out[:n], nil
}

func init() {
	b64Encode := &Base64EncodeOp{
		BaseOperation: BaseOperation{
			NameValue:        "base64_encode",
			TypeValue:        OperationTypeEncode,
			DescriptionValue: "Armor data as standard Base64",
		},
	}
	b64Decode := &Base64DecodeOp{
		BaseOperation: BaseOperation{
			NameValue:        "base64_decode",
			TypeValue:        OperationTypeDecode,
			DescriptionValue: "Decode Base64 armor",
		},
	}
	b64Encode.ReverseOp = b64Decode
	b64Decode.ReverseOp = b64Encode

	hexEncode := &HexEncodeOp{
		BaseOperation: BaseOperation{
			NameValue:        "hex_encode",
			TypeValue:        OperationTypeEncode,
			DescriptionValue: "Armor data as hexadecimal",
		},
	}
	hexDecode := &HexDecodeOp{
		BaseOperation: BaseOperation{
			NameValue:        "hex_decode",
			TypeValue:        OperationTypeDecode,
			DescriptionValue: "Decode hexadecimal armor",
		},
	}
	hexEncode.ReverseOp = hexDecode
	hexDecode.ReverseOp = hexEncode

	mustRegister(b64Encode, b64Decode, hexEncode, hexDecode)
}

func mustRegister(ops ...Operation) {
	for _, op := range ops {
		if err := RegisterOperation(op); err != nil {
			panic(err)
		}
	}
}
