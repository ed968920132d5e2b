// Package rpc serves the FBC engine over gRPC and provides a matching client.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fbcrypt.v1.Cipher"

// Full method names, as seen by interceptors.
const (
	EncryptMethod     = "/" + ServiceName + "/Encrypt"
	DecryptMethod     = "/" + ServiceName + "/Decrypt"
	GenerateKeyMethod = "/" + ServiceName + "/GenerateKey"
)

// Request metadata keys.
const (
	MetadataRuns          = "x-fbc-runs"
	MetadataThreads       = "x-fbc-threads"
	MetadataRequestID     = "x-request-id"
	MetadataAuthorization = "authorization"
)

// CipherServer is the server API for the fbcrypt.v1.Cipher service. Payloads
// travel as well-known BytesValue messages so no generated code is needed.
type CipherServer interface {
	Encrypt(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Decrypt(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GenerateKey(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// RegisterCipherServer attaches srv to s.
func RegisterCipherServer(s grpc.ServiceRegistrar, srv CipherServer) {
	s.RegisterService(&CipherServiceDesc, srv)
}

// CipherServiceDesc describes the fbcrypt.v1.Cipher service.
var CipherServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CipherServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Encrypt", Handler: encryptHandler},
		{MethodName: "Decrypt", Handler: decryptHandler},
		{MethodName: "GenerateKey", Handler: generateKeyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fbcrypt/v1/cipher.proto",
}

func encryptHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CipherServer).Encrypt(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EncryptMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CipherServer).Encrypt(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func decryptHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CipherServer).Decrypt(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DecryptMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CipherServer).Decrypt(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func generateKeyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CipherServer).GenerateKey(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GenerateKeyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CipherServer).GenerateKey(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
