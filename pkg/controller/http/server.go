package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/usecase"
)

// UseCase is what the API needs from the application layer
type UseCase interface {
	Generator(method types.Method) (*usecase.Generator, error)
	Methods() []types.Method
	BuildReport(ctx context.Context, dataset *model.Dataset, method types.Method) (*usecase.Report, error)
	CompareMethods(ctx context.Context, dataset *model.Dataset, methodA, methodB types.Method) (*usecase.Comparison, error)
}

type Server struct {
	router       *chi.Mux
	uc           UseCase
	maxBodyBytes int64
}

type Options func(*Server)

// WithMaxBodyBytes limits the size of dataset request bodies
func WithMaxBodyBytes(n int64) Options {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

const defaultMaxBodyBytes = 1 << 20

func New(uc UseCase, opts ...Options) (*Server, error) {
	if uc == nil {
		return nil, goerr.New("usecase is required")
	}

	r := chi.NewRouter()
	s := &Server{
		router:       r,
		uc:           uc,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/coordinates/{concept}", s.coordinateHandler)
		r.Post("/reports", s.reportHandler)
		r.Post("/agreement", s.agreementHandler)
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
