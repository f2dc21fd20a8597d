package hostrpc

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	datasource "github.com/hanpama/livegraph/internal/datasource"
	store "github.com/hanpama/livegraph/internal/store"
)

// Server serves runtime hosts to remote consumers, one event stream per
// Events call.
type Server struct {
	hosts  map[string]datasource.RuntimeHost
	logger *zap.Logger
}

var _ hostService = (*Server)(nil)

func NewServer(logger *zap.Logger, hosts ...datasource.RuntimeHost) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := make(map[string]datasource.RuntimeHost, len(hosts))
	for _, h := range hosts {
		m[h.Definition().ID] = h
	}
	return &Server{hosts: m, logger: logger}
}

// Register adds the service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *Server) host(source string) (datasource.RuntimeHost, error) {
	h, ok := s.hosts[source]
	if !ok {
		return nil, status.Error(codes.NotFound, fmt.Sprintf("%v: %q", ErrUnknownSource, source))
	}
	return h, nil
}

func (s *Server) streamEvents(req *structpb.Struct, stream grpc.ServerStream) error {
	source := req.GetFields()["source"].GetStringValue()
	h, err := s.host(source)
	if err != nil {
		return err
	}
	ctx := stream.Context()
	evs, err := h.Events(ctx)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}

	s.logger.Info("Server.Events", zap.String("source", source))
	sent := 0
	for {
		var ev store.Event
		var ok bool
		select {
		case <-ctx.Done():
			err := ctx.Err()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return status.FromContextError(err).Err()
		case ev, ok = <-evs:
		}
		if !ok {
			s.logger.Info("Server.Events finished", zap.String("source", source), zap.Int("sent", sent))
			return nil
		}
		msg, err := encodeEvent(ev)
		if err != nil {
			// not representable on the wire; the consumer never sees it
			h.Rejected(ev, err)
			continue
		}
		if err := stream.SendMsg(msg); err != nil {
			s.logger.Warn("Server.Events send", zap.String("source", source), zap.Int("sent", sent), zap.Error(err))
			return err
		}
		sent++
	}
}

func (s *Server) reject(_ context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	f := req.GetFields()
	h, err := s.host(f["source"].GetStringValue())
	if err != nil {
		return nil, err
	}
	kind, _ := store.ParseEventKind(f["kind"].GetStringValue())
	ev := store.Event{
		Kind:   kind,
		Source: f["source"].GetStringValue(),
		Key:    store.Key{Type: f["type"].GetStringValue(), ID: f["id"].GetStringValue()},
	}
	h.Rejected(ev, errors.New(f["error"].GetStringValue()))
	return &emptypb.Empty{}, nil
}
