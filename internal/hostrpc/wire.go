// Package hostrpc runs data-source runtime hosts in other processes. A Server
// streams the events of the hosts it serves over gRPC; a Host is the
// datasource.RuntimeHost on the consuming side.
//
// Messages are protobuf Struct values, so no generated code is needed:
//
//	Events(Struct{source}) returns (stream Struct{kind, source, type, id, entity})
//	Reject(Struct{source, kind, type, id, error}) returns (Empty)
package hostrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	store "github.com/hanpama/livegraph/internal/store"
)

const (
	serviceName  = "livegraph.hostrpc.RuntimeHost"
	eventsMethod = "/" + serviceName + "/Events"
	rejectMethod = "/" + serviceName + "/Reject"
)

type hostService interface {
	streamEvents(req *structpb.Struct, stream grpc.ServerStream) error
	reject(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*hostService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reject", Handler: rejectHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(hostService).streamEvents(req, stream)
}

func rejectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(hostService).reject(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rejectMethod}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(hostService).reject(ctx, req.(*structpb.Struct))
	})
}

func encodeEvent(ev store.Event) (*structpb.Struct, error) {
	fields := map[string]any{
		"kind":   ev.Kind.String(),
		"source": ev.Source,
		"type":   ev.Key.Type,
		"id":     ev.Key.ID,
	}
	if ev.Entity != nil {
		fields["entity"] = store.PlainValue(map[string]any(ev.Entity))
	}
	return structpb.NewStruct(fields)
}

func decodeEvent(msg *structpb.Struct) (store.Event, error) {
	f := msg.GetFields()
	ev := store.Event{
		Source: f["source"].GetStringValue(),
		Key:    store.Key{Type: f["type"].GetStringValue(), ID: f["id"].GetStringValue()},
	}
	kind, ok := store.ParseEventKind(f["kind"].GetStringValue())
	if !ok {
		// the key is kept so the rejection can name the event
		return ev, fmt.Errorf("unknown event kind %q", f["kind"].GetStringValue())
	}
	ev.Kind = kind
	if entity := f["entity"].GetStructValue(); entity != nil {
		ev.Entity = store.Entity(entity.AsMap())
	}
	return ev, nil
}

func encodeRejection(ev store.Event, reason error) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"source": ev.Source,
		"kind":   ev.Kind.String(),
		"type":   ev.Key.Type,
		"id":     ev.Key.ID,
		"error":  reason.Error(),
	})
}
