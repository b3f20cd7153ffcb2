// Package api exposes the drone and medication services over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dronemed/pkg/drone"
	"dronemed/pkg/fleet"
	"dronemed/pkg/medication"
	"dronemed/pkg/metrics"
)

const requestIDHeader = "X-Request-ID"

type DroneService interface {
	RegisterDrone(ctx context.Context, req fleet.RegisterRequest) (*drone.Drone, error)
	GetDroneByID(ctx context.Context, serialNumber string) (*drone.Drone, error)
	LoadDrone(ctx context.Context, serialNumber string, med medication.Medication) (fleet.Result, error)
	GetLoadedMeds(ctx context.Context, serialNumber string) ([]*medication.Medication, error)
	GetAllDrones(ctx context.Context) ([]*drone.Drone, error)
	GetDronesByState(ctx context.Context, state drone.State) ([]*drone.Drone, error)
	GetIdleDrones(ctx context.Context) ([]*drone.Drone, error)
	GetLoadedDrones(ctx context.Context) ([]*drone.Drone, error)
	GetDronesMarkedForDelivery(ctx context.Context) ([]*drone.Drone, error)
	GetDronesMarkedAsDelivered(ctx context.Context) ([]*drone.Drone, error)
	GetReturningDrones(ctx context.Context) ([]*drone.Drone, error)
	GetBatteryLevel(ctx context.Context, serialNumber string) (int, error)
	SendDroneForDelivery(ctx context.Context, serialNumber string) error
	DeliverDrone(ctx context.Context, serialNumber string) error
	ReturnDrone(ctx context.Context, serialNumber string) error
	MarkIdle(ctx context.Context, serialNumber string) error
}

type MedicationService interface {
	GetAllMedications(ctx context.Context) ([]*medication.Medication, error)
	GetMedication(ctx context.Context, id string) (*medication.Medication, error)
}

// HealthChecker reports whether the storage backend is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HTTPServer struct {
	server      *http.Server
	router      *mux.Router
	drones      DroneService
	medications MedicationService
	health      HealthChecker
	logger      *zap.Logger
}

func NewHTTPServer(addr string, drones DroneService, medications MedicationService, health HealthChecker, logger *zap.Logger) *HTTPServer {
	router := mux.NewRouter()

	s := &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			WriteTimeout:      60 * time.Second,
			ReadTimeout:       5 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		},
		router:      router,
		drones:      drones,
		medications: medications,
		health:      health,
		logger:      logger,
	}

	router.Use(s.requestIDMiddleware)
	router.Use(s.metricsMiddleware)
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// fixed paths first, {serialNumber} would swallow them otherwise
	api.HandleFunc("/drones/register", s.registerDrone).Methods(http.MethodPost)
	api.HandleFunc("/drones", s.listAllDrones).Methods(http.MethodGet)
	api.HandleFunc("/drones/available", s.listDrones(drones.GetIdleDrones)).Methods(http.MethodGet)
	api.HandleFunc("/drones/loaded", s.listDrones(drones.GetLoadedDrones)).Methods(http.MethodGet)
	api.HandleFunc("/drones/forDelivery", s.listDrones(drones.GetDronesMarkedForDelivery)).Methods(http.MethodGet)
	api.HandleFunc("/drones/delivered", s.listDrones(drones.GetDronesMarkedAsDelivered)).Methods(http.MethodGet)
	api.HandleFunc("/drones/returning", s.listDrones(drones.GetReturningDrones)).Methods(http.MethodGet)

	api.HandleFunc("/drones/{serialNumber}", s.getDrone).Methods(http.MethodGet)
	api.HandleFunc("/drones/{serialNumber}/loadMeds", s.loadDrone).Methods(http.MethodPost)
	api.HandleFunc("/drones/{serialNumber}/medications", s.getLoadedMeds).Methods(http.MethodGet)
	api.HandleFunc("/drones/{serialNumber}/battery", s.getBatteryLevel).Methods(http.MethodGet)
	api.HandleFunc("/drones/{serialNumber}/setForDelivery", s.transition(drones.SendDroneForDelivery, http.StatusAccepted)).Methods(http.MethodPatch)
	api.HandleFunc("/drones/{serialNumber}/deliver", s.transition(drones.DeliverDrone, http.StatusOK)).Methods(http.MethodPatch)
	api.HandleFunc("/drones/{serialNumber}/returnDrone", s.transition(drones.ReturnDrone, http.StatusAccepted)).Methods(http.MethodPatch)
	api.HandleFunc("/drones/{serialNumber}/markIdle", s.transition(drones.MarkIdle, http.StatusAccepted)).Methods(http.MethodPatch)

	api.HandleFunc("/medications", s.listMedications).Methods(http.MethodGet)
	api.HandleFunc("/medications/{id}", s.getMedication).Methods(http.MethodGet)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// responseWriter tracks the status code and body size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// requestIDMiddleware keeps an incoming X-Request-ID or assigns a new one.
func (s *HTTPServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware labels requests with the route template, not the raw path
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		status := strconv.Itoa(rw.statusCode)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.size))
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info("HTTP request",
			zap.String("request_id", r.Header.Get(requestIDHeader)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("ip", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
			zap.Int("status", rw.statusCode),
			zap.Int("response_size", rw.size),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *HTTPServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		s.logger.Error("Health check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, codeUnavailable, "storage backend unreachable")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
