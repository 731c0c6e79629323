// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/livevote/cliparse"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/ledger"
	"github.com/danielhkuo/livevote/middleware"
)

type ElectionHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	ledger *ledger.Ledger
}

func NewElectionHandler(db *sql.DB, cfg cliparse.Config, clk clock.Clock) *ElectionHandler {
	return &ElectionHandler{
		db:     db,
		cfg:    cfg,
		ledger: ledger.New(db, cfg.DatabaseType, clk),
	}
}

// GetElection handles GET /api/election
func (h *ElectionHandler) GetElection(w http.ResponseWriter, r *http.Request) {
	e, err := h.ledger.Election(r.Context())
	if err != nil {
		ledgerError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, e)
}

// GetResults handles GET /api/election/results
func (h *ElectionHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.ledger.Results(r.Context())
	if err != nil {
		ledgerError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, results)
}
