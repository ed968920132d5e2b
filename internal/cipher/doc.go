// Package cipher exposes the FBC engine and the armor encodings used around
// it as named, reversible operations that can be chained into pipelines.
//
// # Operations
//
//	op, _ := cipher.GetOperation("fbc_encrypt")
//	out, err := op.Execute(ctx, data, map[string]any{
//	    "key":     key,      // fbc.Key, raw 256 bytes, or 512 hex characters
//	    "runs":    4,
//	    "threads": 8,
//	})
//
// A prepared *fbc.Cipher may be passed as the "cipher" parameter instead of a
// key so the row tables are built only once. "runs" and "threads" then
// override its settings for this call without modifying it.
//
// # Pipelines
//
// Pipelines apply operations in order and can be reversed when every step
// has an inverse:
//
//	p := &cipher.Pipeline{
//	    Operations: []cipher.OperationConfig{
//	        {Name: "fbc_encrypt", Parameters: params},
//	        {Name: "base64_encode"},
//	    },
//	    Reversible: true,
//	}
//	armored, _ := p.Execute(ctx, data)
//	back, _ := p.Reverse()
//	plain, _ := back.Execute(ctx, armored)
//
// # Thread Safety
//
// Registries are safe for concurrent use. The registered operations are
// stateless; each call builds or borrows its own cipher view.
package cipher
