package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"stakecast/internal/config"
	"stakecast/internal/engine"
	"stakecast/pkg/types"
)

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	core     Core
	cfg      config.ServerConfig
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandlers creates a handlers instance.
func NewHandlers(core Core, cfg config.ServerConfig, hub *Hub, logger *slog.Logger) *Handlers {
	h := &Handlers{
		core:   core,
		cfg:    cfg,
		hub:    hub,
		logger: logger.With("component", "api-handlers"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), cfg.AllowedOrigins)
		},
	}
	return h
}

// isOriginAllowed checks a WebSocket origin against the configured allowlist.
// An empty allowlist or a "*" entry allows everything; same-origin requests
// send no Origin header and always pass.
func isOriginAllowed(origin string, allowed []string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(err))
	json.NewEncoder(w).Encode(map[string]errorBody{
		"error": {Code: types.Code(err), Message: err.Error()},
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// httpStatus maps error kinds to HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, types.ErrMarketDoesNotExist),
		errors.Is(err, types.ErrTicketDoesNotExist),
		errors.Is(err, types.ErrPriceFeedNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrMarketAlreadyExists),
		errors.Is(err, types.ErrMarketAlreadyResolved),
		errors.Is(err, types.ErrMarketNotYetResolved),
		errors.Is(err, types.ErrRewardAlreadyClaimed),
		errors.Is(err, types.ErrStalePrice):
		return http.StatusConflict
	case types.Code(err) == "INTERNAL":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %v: %w", err, types.ErrInvalidArgument)
	}
	return nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s %q is not a hex address: %w", field, s, types.ErrInvalidArgument)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s %q is not a decimal: %w", field, s, types.ErrInvalidArgument)
	}
	return d, nil
}

func parseOutcome(s string) (types.Outcome, error) {
	switch s {
	case "below", "Below":
		return types.Below, nil
	case "above", "Above":
		return types.Above, nil
	default:
		return 0, fmt.Errorf("outcome %q: %w", s, types.ErrInvalidArgument)
	}
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q: %w", r.PathValue("id"), types.ErrInvalidArgument)
	}
	return id, nil
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSnapshot returns the full engine state.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, BuildSnapshot(h.core))
}

// HandleListMarkets returns all markets.
func (h *Handlers) HandleListMarkets(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	markets := h.core.ListMarkets()
	views := make([]MarketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, newMarketView(m, now))
	}
	h.writeJSON(w, http.StatusOK, map[string][]MarketView{"markets": views})
}

// HandleGetMarket returns one market by id.
func (h *Handlers) HandleGetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	m, ok := h.core.GetMarket(id)
	if !ok {
		h.writeError(w, fmt.Errorf("market %d: %w", id, types.ErrMarketDoesNotExist))
		return
	}
	h.writeJSON(w, http.StatusOK, newMarketView(m, time.Now()))
}

// HandleCreateMarket registers a new market.
func (h *Handlers) HandleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	threshold, err := parseAmount("price_threshold", req.PriceThreshold)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.core.CreateMarket(caller, req.ID, req.Name, req.Symbol, threshold, req.ExpirationTime, req.FeedID); err != nil {
		h.writeError(w, err)
		return
	}
	m, _ := h.core.GetMarket(req.ID)
	h.writeJSON(w, http.StatusCreated, newMarketView(m, time.Now()))
}

// HandleResolveMarket settles an expired market.
func (h *Handlers) HandleResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.core.ResolveMarket(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	m, _ := h.core.GetMarket(id)
	h.writeJSON(w, http.StatusOK, newMarketView(m, time.Now()))
}

// HandleGetTicket returns one ticket by id.
func (h *Handlers) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	tk, ok := h.core.GetTicket(id)
	if !ok {
		h.writeError(w, fmt.Errorf("ticket %d: %w", id, types.ErrTicketDoesNotExist))
		return
	}
	h.writeJSON(w, http.StatusOK, newTicketView(tk))
}

// HandleDeposit credits an account.
func (h *Handlers) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		h.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.core.Deposit(account, amount); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": h.core.Balance(account)})
}

// HandlePredict places a direct prediction.
func (h *Handlers) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	outcome, err := parseOutcome(req.Outcome)
	if err != nil {
		h.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ticketID, err := h.core.Predict(caller, req.MarketID, outcome, amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, predictResponse{TicketID: ticketID})
}

// HandleSwap executes a swap with an optional prediction payload attached.
func (h *Handlers) HandleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	trader, err := parseAddress("trader", req.Trader)
	if err != nil {
		h.writeError(w, err)
		return
	}
	amountIn, err := parseAmount("amount_in", req.AmountIn)
	if err != nil {
		h.writeError(w, err)
		return
	}
	amountOut, err := parseAmount("amount_out", req.AmountOut)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var hookData []byte
	if req.HookData != "" {
		hookData, err = hexutil.Decode(req.HookData)
		if err != nil {
			h.writeError(w, fmt.Errorf("hook_data: %v: %w", err, types.ErrInvalidArgument))
			return
		}
	}

	swap, res, err := h.core.ExecuteSwap(engine.SwapRequest{
		PoolID:    req.PoolID,
		Trader:    trader,
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		HookData:  hookData,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, swapResponse{
		Swap:     swap,
		Recorded: res.Recorded,
		TicketID: res.TicketID,
		Stake:    res.Stake,
	})
}

// HandleClaim pays out a winning ticket.
func (h *Handlers) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	payout, err := h.core.ClaimReward(caller, req.TicketID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, claimResponse{
		Principal: payout.Principal,
		Profit:    payout.Profit,
		Fee:       payout.Fee,
		Net:       payout.Net,
	})
}

// HandleSetFees updates the fee configuration.
func (h *Handlers) HandleSetFees(w http.ResponseWriter, r *http.Request) {
	var req setFeesRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	treasury, err := parseAddress("treasury", req.Treasury)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.core.SetFeeConfiguration(caller, treasury, req.FeeBps); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.core.FeeConfig())
}

// HandleSetMinStake updates the minimum stake floor.
func (h *Handlers) HandleSetMinStake(w http.ResponseWriter, r *http.Request) {
	var req setMinStakeRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.core.SetMinStakeAmount(caller, amount); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"min_stake": h.core.MinStake()})
}

// HandleSetStaleness updates the oracle staleness window.
func (h *Handlers) HandleSetStaleness(w http.ResponseWriter, r *http.Request) {
	var req setStalenessRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	window, err := time.ParseDuration(req.MaxStaleness)
	if err != nil {
		h.writeError(w, fmt.Errorf("max_staleness %q: %w", req.MaxStaleness, types.ErrInvalidArgument))
		return
	}
	if err := h.core.SetMaxPriceStaleness(caller, window); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"max_staleness": h.core.MaxPriceStaleness().String()})
}

// HandleWebSocket upgrades the connection and registers a stream client.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := NewClient(h.hub, conn)

	// Prime the client with the current state.
	data, err := json.Marshal(map[string]interface{}{
		"type": "snapshot",
		"data": BuildSnapshot(h.core),
	})
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client")
	}
}
