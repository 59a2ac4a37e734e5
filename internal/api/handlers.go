package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/crptomonkeys/monKey-matching/internal/store"
)

type ownerRequest struct {
	Owner string `json:"owner"`
}

type verifyRequest struct {
	Owner    string   `json:"owner"`
	AssetIDs []uint64 `json:"asset_ids"`
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	game, err := s.controller.NewGame(r.Context(), req.Owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, game)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	game, err := s.db.GetGame(owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	game, err := s.controller.Verify(r.Context(), req.Owner, req.AssetIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	result, err := s.controller.Complete(r.Context(), req.Owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	assetID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	var req ownerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	if err := s.controller.Unfreeze(r.Context(), req.Owner, assetID); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleUnfreezeAll(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	if err := s.controller.UnfreezeAll(r.Context(), req.Owner); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type maintenanceRequest struct {
	Maintenance bool `json:"maintenance"`
}

func (s *Server) handleSetMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.db.SetMaintenance(req.Maintenance); err != nil {
		writeDomainError(w, err)
		return
	}

	s.log.WithField("maintenance", req.Maintenance).Info("maintenance flag updated")
	writeJSON(w, http.StatusOK, map[string]bool{"maintenance": req.Maintenance})
}

type rewardTierRequest struct {
	Completions uint64 `json:"completions"`
	Contract    string `json:"contract"`
	Amount      string `json:"amount"`
	Symbol      string `json:"symbol"`
}

func (s *Server) handleUpsertRewards(w http.ResponseWriter, r *http.Request) {
	var tiers []rewardTierRequest
	if err := json.NewDecoder(r.Body).Decode(&tiers); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for _, t := range tiers {
		amount, err := decimal.NewFromString(t.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount: "+t.Amount)
			return
		}

		tier := &store.RewardTier{
			Completions: t.Completions,
			Contract:    t.Contract,
			Amount:      amount,
			Symbol:      t.Symbol,
		}
		if err := s.db.PutRewardTier(tier); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"upserted": len(tiers)})
}

func (s *Server) handleAddAssets(w http.ResponseWriter, r *http.Request) {
	var assets []store.Asset
	if err := json.NewDecoder(r.Body).Decode(&assets); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.db.PutAssets(assets); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"added": len(assets)})
}
