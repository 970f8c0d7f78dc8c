package api

import (
	"context"

	"google.golang.org/grpc"
)

// Service names
const (
	StorageServiceName = "ytstorage.StorageService"
	InfoServiceName    = "ytstorage.Info"
)

// Full method names, as seen by interceptors
const (
	MethodHealth               = "/" + StorageServiceName + "/Health"
	MethodStat                 = "/" + StorageServiceName + "/Stat"
	MethodExists               = "/" + StorageServiceName + "/Exists"
	MethodListdir              = "/" + StorageServiceName + "/Listdir"
	MethodMkdirs               = "/" + StorageServiceName + "/Mkdirs"
	MethodRename               = "/" + StorageServiceName + "/Rename"
	MethodRemove               = "/" + StorageServiceName + "/Remove"
	MethodGeneratePresignedURL = "/" + StorageServiceName + "/GeneratePresignedUrl"
	MethodRead                 = "/" + StorageServiceName + "/Read"
	MethodWrite                = "/" + StorageServiceName + "/Write"
	MethodInfoAll              = "/" + InfoServiceName + "/All"
)

// StorageServiceServer is the server API for the storage service
type StorageServiceServer interface {
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
	Stat(context.Context, *StatRequest) (*StatResponse, error)
	Exists(context.Context, *ExistsRequest) (*ExistsResponse, error)
	Listdir(context.Context, *ListdirRequest) (*ListdirResponse, error)
	Mkdirs(context.Context, *MkdirsRequest) (*MkdirsResponse, error)
	Rename(context.Context, *RenameRequest) (*RenameResponse, error)
	Remove(context.Context, *RemoveRequest) (*RemoveResponse, error)
	GeneratePresignedUrl(context.Context, *PresignRequest) (*PresignResponse, error)
	Read(*ReadRequest, ReadServer) error
	Write(WriteServer) error
}

// ReadServer is the server side of a Read stream
type ReadServer interface {
	Send(*ReadChunk) error
	grpc.ServerStream
}

// WriteServer is the server side of a Write stream
type WriteServer interface {
	Recv() (*WriteFrame, error)
	SendAndClose(*WriteAck) error
	grpc.ServerStream
}

// InfoServer is the server API for the info service
type InfoServer interface {
	All(context.Context, *InfoRequest) (*InfoResponse, error)
}

// unary adapts a typed method to a grpc.MethodHandler
func unary[S, Req, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func readHandler(srv any, stream grpc.ServerStream) error {
	in := new(ReadRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StorageServiceServer).Read(in, &readServer{stream})
}

type readServer struct {
	grpc.ServerStream
}

func (x *readServer) Send(m *ReadChunk) error {
	return x.ServerStream.SendMsg(m)
}

func writeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(StorageServiceServer).Write(&writeServer{stream})
}

type writeServer struct {
	grpc.ServerStream
}

func (x *writeServer) Recv() (*WriteFrame, error) {
	m := new(WriteFrame)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (x *writeServer) SendAndClose(m *WriteAck) error {
	return x.ServerStream.SendMsg(m)
}

// StorageServiceDesc describes the storage service for grpc.Server
var StorageServiceDesc = grpc.ServiceDesc{
	ServiceName: StorageServiceName,
	HandlerType: (*StorageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: unary(MethodHealth, StorageServiceServer.Health)},
		{MethodName: "Stat", Handler: unary(MethodStat, StorageServiceServer.Stat)},
		{MethodName: "Exists", Handler: unary(MethodExists, StorageServiceServer.Exists)},
		{MethodName: "Listdir", Handler: unary(MethodListdir, StorageServiceServer.Listdir)},
		{MethodName: "Mkdirs", Handler: unary(MethodMkdirs, StorageServiceServer.Mkdirs)},
		{MethodName: "Rename", Handler: unary(MethodRename, StorageServiceServer.Rename)},
		{MethodName: "Remove", Handler: unary(MethodRemove, StorageServiceServer.Remove)},
		{MethodName: "GeneratePresignedUrl", Handler: unary(MethodGeneratePresignedURL, StorageServiceServer.GeneratePresignedUrl)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Read", Handler: readHandler, ServerStreams: true},
		{StreamName: "Write", Handler: writeHandler, ClientStreams: true},
	},
	Metadata: "ytstorage.proto",
}

// InfoServiceDesc describes the info service for grpc.Server
var InfoServiceDesc = grpc.ServiceDesc{
	ServiceName: InfoServiceName,
	HandlerType: (*InfoServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "All", Handler: unary(MethodInfoAll, InfoServer.All)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "info.proto",
}

// RegisterStorageServiceServer registers srv with s
func RegisterStorageServiceServer(s grpc.ServiceRegistrar, srv StorageServiceServer) {
	s.RegisterService(&StorageServiceDesc, srv)
}

// RegisterInfoServer registers srv with s
func RegisterInfoServer(s grpc.ServiceRegistrar, srv InfoServer) {
	s.RegisterService(&InfoServiceDesc, srv)
}
