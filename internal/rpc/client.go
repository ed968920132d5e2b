package rpc

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/RowanDark/fbcrypt/internal/fbc"
	"github.com/RowanDark/fbcrypt/internal/observability/tracing"
)

// Client calls a remote fbcrypt.v1.Cipher service.
type Client struct {
	conn  grpc.ClientConnInterface
	token string
}

// NewClient wraps an existing connection. token is sent as a bearer token
// when non-empty.
func NewClient(conn grpc.ClientConnInterface, token string) *Client {
	return &Client{conn: conn, token: token}
}

// Dial connects to target without transport security. Calls carry the
// caller's trace context. The returned close function releases the
// connection.
func Dial(target, token string, opts ...grpc.DialOption) (*Client, func() error, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(tracing.UnaryClientInterceptor()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", target, err)
	}
	return NewClient(conn, token), conn.Close, nil
}

// Encrypt encrypts data with the server key. runs and threads below one use
// the server defaults.
func (c *Client) Encrypt(ctx context.Context, data []byte, runs, threads int) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(c.outgoing(ctx, runs, threads), EncryptMethod, wrapperspb.Bytes(data), out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Decrypt decrypts data with the server key.
func (c *Client) Decrypt(ctx context.Context, data []byte, runs, threads int) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(c.outgoing(ctx, runs, threads), DecryptMethod, wrapperspb.Bytes(data), out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// GenerateKey asks the server for a fresh random key.
func (c *Client) GenerateKey(ctx context.Context) (fbc.Key, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(c.outgoing(ctx, 0, 0), GenerateKeyMethod, &emptypb.Empty{}, out); err != nil {
		return fbc.Key{}, err
	}
	return fbc.ParseKey(out.GetValue())
}

func (c *Client) outgoing(ctx context.Context, runs, threads int) context.Context {
	var kv []string
	if c.token != "" {
		kv = append(kv, MetadataAuthorization, "Bearer "+c.token)
	}
	if runs > 0 {
		kv = append(kv, MetadataRuns, strconv.Itoa(runs))
	}
	if threads > 0 {
		kv = append(kv, MetadataThreads, strconv.Itoa(threads))
	}
	if len(kv) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}
