package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/RowanDark/fbcrypt/internal/fbc"
	"github.com/RowanDark/fbcrypt/internal/logging"
)

const testToken = "test-token"

func testKey() fbc.Key {
	var k fbc.Key
	for i := range k {
		k[i] = byte(255 - i)
	}
	return k
}

type harness struct {
	cipher *fbc.Cipher
	audit  *syncBuffer
	conn   *grpc.ClientConn
}

func newHarness(t *testing.T, token string, opts ...ServerOption) *harness {
	t.Helper()

	buf := &syncBuffer{}
	audit, err := logging.NewAuditLogger("rpc_test", logging.WithoutStdout(), logging.WithWriter(buf))
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}

	c := fbc.NewWithKey(testKey())
	c.SetRuns(2)
	opts = append(opts, WithAuditLogger(audit))
	srv := NewGRPCServer(NewServer(c, opts...), token, audit)

	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecureCreds()),
	)
	if err != nil {
		t.Fatalf("failed to create gRPC client: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{cipher: c, audit: buf, conn: conn}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	h := newHarness(t, testToken)
	client := NewClient(h.conn, testToken)
	ctx := testContext(t)
	plaintext := []byte(strings.Repeat("remote plaintext ", 40))

	tests := []struct {
		name          string
		runs, threads int
	}{
		{"server_defaults", 0, 0},
		{"single_worker", 3, 1},
		{"parallel", 2, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := client.Encrypt(ctx, plaintext, tt.runs, tt.threads)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}

			want := h.cipher.WithParams(tt.runs, tt.threads).Encrypt(plaintext)
			if !bytes.Equal(ciphertext, want) {
				t.Fatal("remote ciphertext differs from local engine output")
			}

			decrypted, err := client.Decrypt(ctx, ciphertext, tt.runs, tt.threads)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(decrypted, plaintext) {
				t.Fatal("roundtrip failed")
			}
		})
	}

	if h.cipher.Runs() != 2 || h.cipher.Threads() != 1 {
		t.Fatal("request parameters leaked into the shared cipher")
	}
}

func TestEncryptEmptyPayload(t *testing.T) {
	h := newHarness(t, "")
	client := NewClient(h.conn, "")
	ctx := testContext(t)

	ciphertext, err := client.Encrypt(ctx, nil, 1, 1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(ciphertext) != 1 {
		t.Fatalf("expected one marker byte, got %d bytes", len(ciphertext))
	}
	plain, err := client.Decrypt(ctx, ciphertext, 1, 1)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if len(plain) != 0 {
		t.Fatalf("expected empty plaintext, got %d bytes", len(plain))
	}
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, testToken)
	ctx := testContext(t)

	for _, token := range []string{"", "wrong-token"} {
		_, err := NewClient(h.conn, token).Encrypt(ctx, []byte("x"), 0, 0)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("token %q: expected Unauthenticated, got %v", token, err)
		}
	}
	if !strings.Contains(h.audit.String(), string(logging.EventRPCDenied)) {
		t.Fatalf("expected rpc_denied audit event, got %s", h.audit.String())
	}
}

func TestDecryptRejectsMalformedFrames(t *testing.T) {
	h := newHarness(t, testToken)
	client := NewClient(h.conn, testToken)
	ctx := testContext(t)

	tests := []struct {
		name          string
		data          []byte
		runs, threads int
	}{
		{"short_single", []byte{1}, 4, 1},
		{"short_frame", []byte{1, 2, 3}, 1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Decrypt(ctx, tt.data, tt.runs, tt.threads)
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
		})
	}
	if !strings.Contains(h.audit.String(), string(logging.EventFrameRejected)) {
		t.Fatalf("expected frame_rejected audit event, got %s", h.audit.String())
	}
}

func TestParameterValidation(t *testing.T) {
	h := newHarness(t, "", WithLimits(4, 16))
	ctx := testContext(t)
	client := NewClient(h.conn, "")

	if _, err := client.Encrypt(ctx, []byte("x"), 5, 1); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected runs limit error, got %v", err)
	}
	if _, err := client.Encrypt(ctx, []byte("x"), 1, 17); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected threads limit error, got %v", err)
	}

	bad := metadata.AppendToOutgoingContext(ctx, MetadataThreads, "lots")
	if _, err := client.Encrypt(bad, []byte("x"), 0, 0); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid header error, got %v", err)
	}
}

func TestGenerateKey(t *testing.T) {
	h := newHarness(t, testToken)
	ctx := testContext(t)

	key, err := NewClient(h.conn, testToken).GenerateKey(ctx)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if !key.IsPermutation() {
		t.Fatal("generated key is not a permutation")
	}
	if key == h.cipher.Key() {
		t.Fatal("generated key should not be the server key")
	}
	if strings.Contains(h.audit.String(), key.String()) {
		t.Fatal("generated key leaked into the audit log")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	h := newHarness(t, "")
	ctx := testContext(t)
	const id = "3f2b8c1e-8a55-4f0e-9a31-2d8f4b6c7e90"

	var header metadata.MD
	in := metadata.AppendToOutgoingContext(ctx, MetadataRequestID, id)
	if err := h.conn.Invoke(in, EncryptMethod, wrapBytes("x"), wrapBytes(""), grpc.Header(&header)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := header.Get(MetadataRequestID); len(got) != 1 || got[0] != id {
		t.Fatalf("expected request id echoed, got %v", got)
	}

	found := false
	for _, line := range strings.Split(strings.TrimSpace(h.audit.String()), "\n") {
		var event logging.AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("decode audit line: %v", err)
		}
		if event.EventType == logging.EventRPCCall && event.RequestID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("rpc_call event with request id not found in %s", h.audit.String())
	}
}

func TestTraceContextRecorded(t *testing.T) {
	h := newHarness(t, "")
	ctx := testContext(t)
	const traceID = "0af7651916cd43dd8448eb211c80319c"

	in := metadata.AppendToOutgoingContext(ctx, "traceparent", "00-"+traceID+"-b7ad6b7169203331-01")
	if err := h.conn.Invoke(in, EncryptMethod, wrapBytes("traced"), wrapBytes("")); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	for _, line := range strings.Split(strings.TrimSpace(h.audit.String()), "\n") {
		var event logging.AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("decode audit line: %v", err)
		}
		if event.EventType == logging.EventRPCCall && event.Metadata["trace_id"] == traceID {
			return
		}
	}
	t.Fatalf("rpc_call event with trace id not found in %s", h.audit.String())
}
