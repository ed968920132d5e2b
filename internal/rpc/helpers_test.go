package rpc

import (
	"bytes"
	"sync"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// syncBuffer lets the test read what server goroutines wrote.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func insecureCreds() credentials.TransportCredentials {
	return insecure.NewCredentials()
}

func wrapBytes(s string) *wrapperspb.BytesValue {
	return wrapperspb.Bytes([]byte(s))
}
