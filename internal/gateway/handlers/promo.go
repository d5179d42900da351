package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/signalnoise/factgate/internal/gateway/promo"
)

// PromoRequest is the inbound body for POST /v1/promo.
type PromoRequest struct {
	Code      string `json:"code"`
	SubjectID string `json:"subjectId"`
}

// PromoResponse reports a successful redemption.
type PromoResponse struct {
	Message              string `json:"message"`
	BonusChecksRemaining int64  `json:"bonusChecksRemaining"`
}

type PromoHandler struct {
	redeemer Redeemer
}

func NewPromoHandler(redeemer Redeemer) *PromoHandler {
	return &PromoHandler{redeemer: redeemer}
}

// HandlePromo handles POST /v1/promo
func (h *PromoHandler) HandlePromo(w http.ResponseWriter, r *http.Request) {
	var req PromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Invalid request body",
			Code:    "invalid_request",
		})
		return
	}
	if req.Code == "" || req.SubjectID == "" {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Missing code or subject ID",
			Code:    "invalid_request",
		})
		return
	}

	balance, err := h.redeemer.Redeem(r.Context(), req.SubjectID, req.Code)
	switch {
	case errors.Is(err, promo.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Invalid promo code",
			Code:    "invalid_code",
		})
		return
	case errors.Is(err, promo.ErrAlreadyRedeemed):
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "You already used this promo code",
			Code:    "already_redeemed",
		})
		return
	case err != nil:
		log.Printf("promo: redemption failed: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorBody{Message: "Failed to apply promo code"})
		return
	}

	granted, _ := promo.Credit(req.Code)
	writeJSON(w, http.StatusOK, PromoResponse{
		Message:              fmt.Sprintf("Success! You got %d bonus fact-checks!", granted),
		BonusChecksRemaining: balance,
	})
}
