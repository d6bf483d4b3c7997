package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/epam/rule-engine/internal/app"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/platform/system"
)

// Service wraps the HTTP router in the lifecycle contract every long-running
// component in this module shares, the same shape the teacher's
// internal/app/httpapi.Service gives its own HTTP boundary.
type Service struct {
	addr   string
	server *http.Server
	log    *logging.Logger
}

var _ system.Service = (*Service)(nil)

// NewService constructs the HTTP boundary service, listening on addr.
func NewService(application *app.Application, addr string, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewFromEnv("httpapi")
	}
	return &Service{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(application, log),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		log: log,
	}
}

func (s *Service) Name() string { return "http" }

func (s *Service) Descriptor() system.Descriptor {
	return system.Descriptor{Name: s.Name(), Layer: system.LayerIngress, Capabilities: []string{"jobs", "worker-callback", "event-ingress"}}
}

func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server exited")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
