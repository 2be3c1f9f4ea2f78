package api

import (
	"log/slog"
	"net/http"

	"github.com/voxlate/voxlate-api/internal/api/middleware"
	"github.com/voxlate/voxlate-api/internal/api/shared"
	"github.com/voxlate/voxlate-api/internal/service"
)

// CreditHandler serves credit balance reads for authenticated owners.
type CreditHandler struct {
	creditService *service.CreditService
	logger        *slog.Logger
}

// NewCreditHandler creates a new CreditHandler.
func NewCreditHandler(creditService *service.CreditService, logger *slog.Logger) *CreditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreditHandler{
		creditService: creditService,
		logger:        logger.With(slog.String("component", "credit_handler")),
	}
}

// GetBalance handles GET /credits/balance.
func (h *CreditHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	balance, err := h.creditService.Balance(r.Context(), ownerID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BalanceResponse{Balance: balance})
}
