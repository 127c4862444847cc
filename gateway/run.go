// Copyright 2025 BlackRoad
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

package gateway

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Router builds the HTTP route table for a gateway instance.
func (g *Gateway) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", g.handleHealth).Methods("GET")
	r.HandleFunc("/health", g.handleHealth).Methods("GET")
	r.HandleFunc("/v1/agent", g.handleAgent).Methods("POST")
	r.HandleFunc("/v1/verify", g.handleVerify).Methods("POST")
	r.PathPrefix("/v1/worlds").HandlerFunc(g.handleWorlds).Methods("GET")

	// Only the introspection surface is loopback-guarded; the agent
	// and verify endpoints rely on the default loopback bind.
	guarded := r.NewRoute().Subrouter()
	guarded.Use(mux.MiddlewareFunc(g.loopbackOnly))

	guarded.HandleFunc("/v1/agents", g.handleAgents).Methods("GET")
	guarded.HandleFunc("/v1/providers", g.handleProviders).Methods("GET")
	guarded.HandleFunc("/v1/memory", g.handleMemoryStats).Methods("GET")
	guarded.HandleFunc("/v1/memory/recent", g.handleMemoryRecent).Methods("GET")
	guarded.HandleFunc("/v1/memory/verify", g.handleMemoryVerify).Methods("GET")
	guarded.HandleFunc("/metrics", g.handleMetrics).Methods("GET")
	guarded.Handle("/metrics/prometheus", promhttp.Handler()).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(g.handleNotFound)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// Run loads configuration, builds a gateway, and serves it until
// SIGINT or SIGTERM, then shuts down gracefully.
func Run() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	g, err := New(cfg)
	if err != nil {
		log.Fatalf("Failed to start gateway: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      g.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("BlackRoad LLM gateway %s listening on %s", Version, cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
