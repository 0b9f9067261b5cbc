package dialer

import (
	"context"
	"errors"

	pb "github.com/dense-identity/confdialer/api/go/dialer/v1"
	"github.com/dense-identity/confdialer/internal/callstore"
	"github.com/dense-identity/confdialer/internal/datetime"
	"github.com/dense-identity/confdialer/internal/synth"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server implements DialerServiceServer on top of an Engine.
type Server struct {
	pb.UnimplementedDialerServiceServer

	engine *Engine
	log    *zap.Logger
}

func NewServer(engine *Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, log: logger.Named("grpc")}
}

func (s *Server) PlaceCall(ctx context.Context, req *pb.PlaceCallRequest) (*pb.Call, error) {
	rec, err := s.engine.PlaceCall(ctx, CallRequest{
		CallerID:      req.CallerID,
		Destination:   req.Destination,
		AgentEndpoint: req.AgentEndpoint,
		Trunk:         req.Trunk,
		Message:       req.Message,
		Voice:         req.Voice,
		AudioFileID:   req.AudioFileID,
	})
	if err != nil {
		return nil, s.toStatus("PlaceCall", err)
	}
	return CallToPB(rec), nil
}

func (s *Server) GetCall(ctx context.Context, req *wrapperspb.StringValue) (*pb.Call, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "call id is required")
	}
	rec, err := s.engine.GetCall(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus("GetCall", err)
	}
	return CallToPB(rec), nil
}

func (s *Server) ListCalls(ctx context.Context, req *wrapperspb.Int32Value) (*pb.ListCallsResponse, error) {
	recs, err := s.engine.ListCalls(ctx, int(req.GetValue()))
	if err != nil {
		return nil, s.toStatus("ListCalls", err)
	}
	resp := &pb.ListCallsResponse{Calls: make([]*pb.Call, 0, len(recs))}
	for _, rec := range recs {
		resp.Calls = append(resp.Calls, CallToPB(rec))
	}
	return resp, nil
}

func (s *Server) PlayAudio(ctx context.Context, req *wrapperspb.StringValue) (*pb.PlayAudioResponse, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "call id is required")
	}
	res, err := s.engine.PlayAudio(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus("PlayAudio", err)
	}
	return &pb.PlayAudioResponse{CallID: res.CallID, Channel: res.Channel, Strategy: res.Strategy}, nil
}

func (s *Server) Hangup(ctx context.Context, req *wrapperspb.StringValue) (*pb.Call, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "call id is required")
	}
	rec, err := s.engine.Hangup(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus("Hangup", err)
	}
	return CallToPB(rec), nil
}

// toStatus maps engine errors to status codes. Switch and store details stay
// in the log.
func (s *Server) toStatus(method string, err error) error {
	var (
		invalidState *InvalidStateError
		playback     *PlaybackError
		teardown     *TeardownError
	)
	switch {
	case errors.Is(err, callstore.ErrNotFound):
		return status.Error(codes.NotFound, "call not found")
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, synth.ErrNoAudio):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrAlreadyCompleted):
		return status.Error(codes.FailedPrecondition, "call already completed")
	case errors.Is(err, ErrAlreadyEnded):
		return status.Error(codes.FailedPrecondition, "call already ended")
	case errors.As(err, &invalidState):
		return status.Error(codes.FailedPrecondition, invalidState.Error())
	case errors.Is(err, ErrClosed):
		return status.Error(codes.Unavailable, "dialer is shutting down")
	case errors.As(err, &playback):
		s.log.Warn("Playback failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Unavailable, "audio playback failed")
	case errors.As(err, &teardown):
		s.log.Warn("Teardown failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Unavailable, "could not end the call")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}
	s.log.Error("Request failed", zap.String("method", method), zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

// CallToPB converts a record to its wire form.
func CallToPB(rec *callstore.CallRecord) *pb.Call {
	if rec == nil {
		return nil
	}
	return &pb.Call{
		ID:                rec.ID,
		Status:            rec.Status.String(),
		CallerID:          rec.CallerID,
		Destination:       rec.Destination,
		AgentEndpoint:     rec.OriginEndpoint,
		Trunk:             rec.TrunkEndpoint,
		ConferenceRoom:    rec.ConferenceRoom,
		AgentActionID:     rec.AgentActionID,
		CustomerActionID:  rec.CustomerActionID,
		ConnectedChannels: rec.ConnectedChannels,
		AudioFileID:       rec.AudioFileID,
		Error:             rec.Error,
		CreatedAt:         datetime.ISO(rec.CreatedAt),
		UpdatedAt:         datetime.ISO(rec.UpdatedAt),
		StartTime:         datetime.ISOPtr(rec.StartTime),
		EndTime:           datetime.ISOPtr(rec.EndTime),
	}
}
