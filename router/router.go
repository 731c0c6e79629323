// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/livevote/cliparse"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/handlers"
	"github.com/danielhkuo/livevote/middleware"
)

func NewRouter(db *sql.DB, cfg cliparse.Config, clk clock.Clock) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, cfg, clk)
	faceHandler := handlers.NewFaceHandler(db, cfg, clk)
	voteHandler := handlers.NewVoteHandler(db, cfg, clk)
	electionHandler := handlers.NewElectionHandler(db, cfg, clk)
	adminHandler := handlers.NewAdminHandler(db, cfg, clk)

	issuer := authHandler.Issuer()
	session := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.RequireSession(issuer, h))
	}
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.RequireAdmin(issuer, h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			middleware.ErrorResponse(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Authentication (public)
	mux.HandleFunc("POST /api/auth/register", middleware.WithLogging(authHandler.Register))
	mux.HandleFunc("POST /api/auth/login", middleware.WithLogging(authHandler.Login))
	mux.HandleFunc("POST /api/auth/refresh", middleware.WithLogging(authHandler.Refresh))
	mux.HandleFunc("POST /api/auth/logout", middleware.WithLogging(middleware.OptionalSession(issuer, authHandler.Logout)))

	// Signed-in voter
	mux.HandleFunc("GET /api/auth/profile", session(authHandler.Profile))
	mux.HandleFunc("PUT /api/auth/update-password", session(authHandler.UpdatePassword))
	mux.HandleFunc("POST /api/face/verify", session(faceHandler.VerifyFace))
	mux.HandleFunc("POST /api/vote", session(voteHandler.CastVote))

	// Ballot and election (public)
	mux.HandleFunc("GET /api/candidates", middleware.WithLogging(voteHandler.ListCandidates))
	mux.HandleFunc("GET /api/election", middleware.WithLogging(electionHandler.GetElection))
	mux.HandleFunc("GET /api/election/results", middleware.WithLogging(electionHandler.GetResults))

	// Administration
	mux.HandleFunc("GET /api/admin/voters", admin(adminHandler.ListVoters))
	mux.HandleFunc("PUT /api/admin/verify-voter/{id}", admin(adminHandler.VerifyVoter))
	mux.HandleFunc("GET /api/admin/election/tally", admin(adminHandler.Tally))
	mux.HandleFunc("PUT /api/admin/election/publish", admin(adminHandler.PublishResults))
	mux.HandleFunc("POST /api/admin/election/reset", admin(adminHandler.ResetElection))
	mux.HandleFunc("POST /api/admin/election/stop", admin(adminHandler.EmergencyStop))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("livevote API v1"))
	})

	return mux
}
