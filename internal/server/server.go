// Copyright 2025 Flant JSC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the read-only HTTP API over the Manager and
// Monitor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/manager"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/monitor"
)

const shutdownTimeout = 5 * time.Second

// Server wires the HTTP routes. All endpoints are read-only.
type Server struct {
	log     logr.Logger
	manager *manager.Manager
	monitor *monitor.Monitor
	httpSrv *http.Server
}

// New builds a Server listening on addr. registry may be nil, in which case
// /metrics is not served.
func New(log logr.Logger, addr string, mgr *manager.Manager, mon *monitor.Monitor, registry *prometheus.Registry) *Server {
	s := &Server{
		log:     log.WithName("http-server"),
		manager: mgr,
		monitor: mon,
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/gpus", s.handleGPUs).Methods(http.MethodGet)
	r.HandleFunc("/v1/gpus/{index}", s.handleGPU).Methods(http.MethodGet)
	r.HandleFunc("/v1/gpus/{index}/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/v1/statistics", s.handleStatistics).Methods(http.MethodGet)
	r.HandleFunc("/v1/monitor/stats", s.handleMonitorStats).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.httpSrv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Handler returns the route tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleGPUs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.All())
}

func (s *Server) handleGPU(w http.ResponseWriter, r *http.Request) {
	index, ok := s.indexVar(w, r)
	if !ok {
		return
	}
	record, err := s.manager.Cached(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		http.Error(w, "monitor not running", http.StatusNotFound)
		return
	}
	index, ok := s.indexVar(w, r)
	if !ok {
		return
	}
	history, err := s.monitor.History(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Statistics())
}

func (s *Server) handleMonitorStats(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		http.Error(w, "monitor not running", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.Stats())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) indexVar(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.Error(w, "invalid gpu index", http.StatusBadRequest)
		return 0, false
	}
	return index, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, gpu.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error(err, "encode response")
	}
}
