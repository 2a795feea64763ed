package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"guardiq-worker-go/internal/models"
)

// InferMethod is the full gRPC method name of the model server's inference call
const InferMethod = "/guardiq.detector.v1.Detector/Infer"

// Encoder turns a raw frame into the image bytes sent to the model server
type Encoder func(frame models.Frame) ([]byte, error)

type Service struct {
	mu        sync.RWMutex
	conn      *grpc.ClientConn
	health    healthpb.HealthClient
	grpcURL   string
	encode    Encoder
	timeout   time.Duration
	isHealthy bool
	dialOpts  []grpc.DialOption
}

// NewService creates a detector client. Extra dial options are appended to
// the insecure transport default.
func NewService(grpcURL string, timeout time.Duration, encode Encoder, opts ...grpc.DialOption) (*Service, error) {
	log.Info().Str("url", grpcURL).Msg("Initializing AI detection service")

	service := &Service{
		grpcURL:  grpcURL,
		encode:   encode,
		timeout:  timeout,
		dialOpts: append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
	}

	// Try to connect, but don't fail if it's not available
	if err := service.connect(); err != nil {
		log.Warn().Err(err).Msg("AI detection service not available, will retry later")
	}

	return service, nil
}

func (s *Service) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have reconnected while we waited for the lock
	if s.isHealthy && s.conn != nil {
		return nil
	}

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	conn, err := grpc.NewClient(s.grpcURL, s.dialOpts...)
	if err != nil {
		return fmt.Errorf("failed to connect to detection service: %w", err)
	}

	health := healthpb.NewHealthClient(conn)

	// Test connection with health check
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("detection service health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		conn.Close()
		return fmt.Errorf("detection service not serving: %s", resp.GetStatus())
	}

	s.conn = conn
	s.health = health
	s.isHealthy = true

	log.Info().Msg("Successfully connected to AI detection service")
	return nil
}

func (s *Service) ensureConnection() error {
	s.mu.RLock()
	ok := s.isHealthy && s.conn != nil
	s.mu.RUnlock()
	if ok {
		return nil
	}

	return s.connect()
}

// Infer sends the frame to the model server and returns its detections
func (s *Service) Infer(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	if err := s.ensureConnection(); err != nil {
		return nil, fmt.Errorf("detection service unavailable: %w", err)
	}

	img, err := s.encode(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", frame.ID, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, InferMethod, wrapperspb.Bytes(img), resp); err != nil {
		s.mu.Lock()
		s.isHealthy = false
		s.mu.Unlock()
		return nil, fmt.Errorf("infer frame %d: %w", frame.ID, err)
	}

	detections, err := ParseDetections(resp)
	if err != nil {
		return nil, fmt.Errorf("infer frame %d: %w", frame.ID, err)
	}

	log.Debug().Int64("frame_id", frame.ID).Int("detections", len(detections)).Msg("Detection response")
	return detections, nil
}

// HealthCheck queries the standard gRPC health service
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.ensureConnection(); err != nil {
		return err
	}

	s.mu.RLock()
	health := s.health
	s.mu.RUnlock()

	_, err := health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		s.mu.Lock()
		s.isHealthy = false
		s.mu.Unlock()
	}
	return err
}

func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHealthy
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		log.Info().Msg("Shutting down detection service connection")
		err := s.conn.Close()
		s.conn = nil
		s.isHealthy = false
		return err
	}
	return nil
}
