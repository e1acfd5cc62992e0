package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service a responder backend exposes.
const ServiceName = "voicedesk.responder.v1.Responder"

const respondMethod = "/" + ServiceName + "/Respond"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errMalformedReply           = errors.New("responder: reply field missing")
)

// GrpcResponder calls a remote responder service.
type GrpcResponder struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	logger *slog.Logger
}

// GrpcConfig holds configuration for the gRPC responder.
type GrpcConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcConfig returns default configuration for addr.
func DefaultGrpcConfig(addr string) GrpcConfig {
	return GrpcConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcResponder connects to the responder service and fails fast if it is not ready.
func NewGrpcResponder(cfg GrpcConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcResponder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("responder address is required")
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to responder at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("responder at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to responder service", "address", cfg.Address)

	return &GrpcResponder{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Respond sends the utterance and assistant configuration to the backend.
func (c *GrpcResponder) Respond(ctx context.Context, utterance string, cfg domain.AssistantConfig) (string, error) {
	req, err := EncodeRequest(utterance, cfg)
	if err != nil {
		return "", err
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, respondMethod, req, resp); err != nil {
		c.logger.Warn("responder call failed", "error", err, "assistant_id", cfg.ID)
		return "", fmt.Errorf("respond: %w", err)
	}

	reply, ok := resp.GetFields()["reply"]
	if !ok {
		return "", errMalformedReply
	}
	text := strings.TrimSpace(reply.GetStringValue())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// Health checks the backend through the standard gRPC health service.
func (c *GrpcResponder) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("responder not serving: %s", resp.GetStatus())
	}
	return nil
}

// Close closes the gRPC connection.
func (c *GrpcResponder) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// EncodeRequest builds the wire payload for a Respond call.
func EncodeRequest(utterance string, cfg domain.AssistantConfig) (*structpb.Struct, error) {
	knowledge := make([]any, 0, len(cfg.Knowledge))
	for _, k := range cfg.Knowledge {
		tags := make([]any, 0, len(k.Tags))
		for _, t := range k.Tags {
			tags = append(tags, t)
		}
		knowledge = append(knowledge, map[string]any{
			"title":    k.Title,
			"content":  k.Content,
			"category": k.Category,
			"tags":     tags,
		})
	}

	req, err := structpb.NewStruct(map[string]any{
		"utterance":    utterance,
		"assistant_id": cfg.ID,
		"name":         cfg.Name,
		"personality":  cfg.Personality,
		"language":     cfg.Language,
		"tone":         string(cfg.Tone),
		"knowledge":    knowledge,
	})
	if err != nil {
		return nil, fmt.Errorf("encode respond request: %w", err)
	}
	return req, nil
}

// Server is implemented by responder backends written in Go.
type Server interface {
	Respond(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterServer exposes srv on s under ServiceName.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Respond",
			Handler:    respondHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func respondHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Respond(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: respondMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Respond(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
