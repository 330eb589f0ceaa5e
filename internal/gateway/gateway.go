package gateway

import (
	"context"
	"encoding/json"
	"math/big"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"poolRental/internal/channel"
	"poolRental/internal/errs"
	"poolRental/internal/model"
	"poolRental/internal/profit"
	"poolRental/internal/ratelimit"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// RentalService is the slice of the rental manager the gateway uses.
type RentalService interface {
	GetRental(rentalID uint64) (model.Rental, error)
	RenterRentals(renter common.Address, chainID uint64) []uint64
	SwapHistory(rentalID uint64) ([]model.SwapDetail, error)
	Profit(rentalID uint64, gasCostEstimate *big.Int) (model.ProfitBreakdown, error)
	ExecuteSwap(ctx context.Context, rentalID uint64, tokenIn common.Address, amountIn, minAmountOut *big.Int) (common.Hash, error)
}

// ChannelService is the slice of the channel manager the gateway uses.
type ChannelService interface {
	OpenChannel(ctx context.Context, participant, token common.Address, amount *big.Int) (model.Channel, error)
	CloseChannel(ctx context.Context, channelID [32]byte, finalBalance *big.Int) (model.Channel, error)
	Get(channelID [32]byte) (model.Channel, error)
}

// ChainReader resolves chain support and on-chain rental views.
type ChainReader interface {
	Supported(chainID uint64) bool
	RenterRentals(ctx context.Context, chainID uint64, renter common.Address) ([]uint64, error)
	GetRental(ctx context.Context, chainID, rentalID uint64) (model.Rental, error)
	GetRentalProfits(ctx context.Context, chainID, rentalID uint64) (model.ProfitBreakdown, error)
	GetSwapHistory(ctx context.Context, chainID, rentalID uint64) ([]model.SwapDetail, error)
}

// Gateway is the external-facing settlement API. Requests pass the
// admission gate, are decoded into typed schemas, validated, and only
// then dispatched to the managers.
type Gateway struct {
	rentals  RentalService
	channels ChannelService
	chain    ChainReader
	gate     ratelimit.AdmissionGate
	logger   *zap.Logger
}

func New(rentals RentalService, channels ChannelService, chainReader ChainReader, gate ratelimit.AdmissionGate, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		rentals:  rentals,
		channels: channels,
		chain:    chainReader,
		gate:     gate,
		logger:   logger,
	}
}

// Handler builds the HTTP routing table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/channel/open", g.handleChannelOpen)
	mux.HandleFunc("/channel/close", g.handleChannelClose)
	mux.HandleFunc("/rentals", g.handleRentalList)
	mux.HandleFunc("/rentals/", g.handleRentalDetail)
	mux.HandleFunc("/health", g.handleHealth)
	return g.admit(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (g *Gateway) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		if g.gate != nil && !g.gate.Allow(clientKey(r)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate_limited", "too many requests"))
			g.logger.Warn("request denied by rate limit",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
			)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		g.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
		)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type openChannelRequest struct {
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	Participant string `json:"participant,omitempty"`
}

func (g *Gateway) handleChannelOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req openChannelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	token, err := parseAddress(req.Token, "token")
	if err != nil {
		writeError(w, err)
		return
	}
	var participant common.Address
	if req.Participant != "" {
		participant, err = parseAddress(req.Participant, "participant")
		if err != nil {
			writeError(w, err)
			return
		}
	}
	amount, err := parseUint256(req.Amount, "amount")
	if err != nil {
		writeError(w, err)
		return
	}

	opened, err := g.channels.OpenChannel(r.Context(), participant, token, amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channelId": opened.ChannelID,
		"mock":      opened.Mock,
	})
}

type closeChannelRequest struct {
	ChannelID    string `json:"channelId"`
	FinalBalance string `json:"finalBalance"`
}

func (g *Gateway) handleChannelClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req closeChannelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	channelID, err := channel.ParseID(req.ChannelID)
	if err != nil {
		writeError(w, err)
		return
	}
	finalBalance, err := parseUint256(req.FinalBalance, "finalBalance")
	if err != nil {
		writeError(w, err)
		return
	}

	settled, err := g.channels.CloseChannel(r.Context(), channelID, finalBalance)
	if err != nil {
		writeError(w, err)
		return
	}

	status := "settled"
	if settled.Mock {
		status = "settled_mock"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"txHash": settled.SettlementTx,
		"status": status,
	})
}

func (g *Gateway) handleRentalList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	renter, err := parseAddress(r.URL.Query().Get("address"), "address")
	if err != nil {
		writeError(w, err)
		return
	}
	chainID, err := strconv.ParseUint(r.URL.Query().Get("chainId"), 10, 64)
	if err != nil {
		writeError(w, errs.Validationf("chainId must be a decimal integer"))
		return
	}
	if !g.chain.Supported(chainID) {
		writeError(w, errs.Validationf("unsupported chainId %d", chainID))
		return
	}

	onChain, err := g.chain.RenterRentals(r.Context(), chainID, renter)
	if err != nil {
		writeError(w, err)
		return
	}

	// Locally tracked rentals may not be on chain yet in mock mode;
	// merge and dedupe.
	seen := make(map[uint64]bool, len(onChain))
	ids := make([]uint64, 0, len(onChain))
	for _, id := range onChain {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range g.rentals.RenterRentals(renter, chainID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"rentals": ids})
}

func (g *Gateway) handleRentalDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/rentals/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, errs.Validationf("rental id is required"))
		return
	}
	rentalID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		writeError(w, errs.Validationf("rental id must be a decimal integer"))
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		g.serveRental(w, r, rentalID)

	case len(parts) == 2 && parts[1] == "profits":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		g.serveRentalProfits(w, r, rentalID)

	case len(parts) == 2 && parts[1] == "swaps":
		switch r.Method {
		case http.MethodGet:
			g.serveSwapHistory(w, r, rentalID)
		case http.MethodPost:
			g.handleExecuteSwap(w, r, rentalID)
		default:
			writeMethodNotAllowed(w)
		}

	default:
		writeError(w, errs.NotFoundf("no such rental resource"))
	}
}

// fallbackChain reads the optional chainId query parameter used to
// resolve rentals the service does not track locally.
func (g *Gateway) fallbackChain(r *http.Request) (uint64, bool, error) {
	raw := r.URL.Query().Get("chainId")
	if raw == "" {
		return 0, false, nil
	}
	chainID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, errs.Validationf("chainId must be a decimal integer")
	}
	if !g.chain.Supported(chainID) {
		return 0, false, errs.Validationf("unsupported chainId %d", chainID)
	}
	return chainID, true, nil
}

func (g *Gateway) serveRental(w http.ResponseWriter, r *http.Request, rentalID uint64) {
	rental, err := g.rentals.GetRental(rentalID)
	if errs.KindOf(err) == errs.KindNotFound {
		chainID, ok, cerr := g.fallbackChain(r)
		if cerr != nil {
			writeError(w, cerr)
			return
		}
		if ok {
			rental, err = g.chain.GetRental(r.Context(), chainID, rentalID)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rental)
}

type profitDisplay struct {
	TotalFeesEarned string `json:"total_fees_earned"`
	NetProfit       string `json:"net_profit"`
	ROI             string `json:"roi"`
}

type profitResponse struct {
	model.ProfitBreakdown
	Display *profitDisplay `json:"display,omitempty"`
}

func (g *Gateway) serveRentalProfits(w http.ResponseWriter, r *http.Request, rentalID uint64) {
	var gasEstimate *big.Int
	if raw := r.URL.Query().Get("gas"); raw != "" {
		parsed, err := parseUint256(raw, "gas")
		if err != nil {
			writeError(w, err)
			return
		}
		gasEstimate = parsed
	}

	var decimals int32
	withDisplay := false
	if raw := r.URL.Query().Get("decimals"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed < 0 || parsed > 77 {
			writeError(w, errs.Validationf("decimals must be between 0 and 77"))
			return
		}
		decimals = int32(parsed)
		withDisplay = true
	}

	breakdown, err := g.rentals.Profit(rentalID, gasEstimate)
	if errs.KindOf(err) == errs.KindNotFound {
		chainID, ok, cerr := g.fallbackChain(r)
		if cerr != nil {
			writeError(w, cerr)
			return
		}
		if ok {
			breakdown, err = g.chain.GetRentalProfits(r.Context(), chainID, rentalID)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	response := profitResponse{ProfitBreakdown: breakdown}
	if withDisplay {
		display, err := renderProfitDisplay(breakdown, decimals)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Display = display
	}
	writeJSON(w, http.StatusOK, response)
}

func renderProfitDisplay(breakdown model.ProfitBreakdown, decimals int32) (*profitDisplay, error) {
	fees, err := model.ParseAmount(breakdown.TotalFeesEarned)
	if err != nil {
		return nil, errs.Validationf("total_fees_earned: %v", err)
	}
	net, err := model.ParseAmount(breakdown.NetProfit)
	if err != nil {
		return nil, errs.Validationf("net_profit: %v", err)
	}
	return &profitDisplay{
		TotalFeesEarned: profit.FormatUnits(fees, decimals),
		NetProfit:       profit.FormatUnits(net, decimals),
		ROI:             profit.FormatROI(breakdown.ROIBasisPoints),
	}, nil
}

func (g *Gateway) serveSwapHistory(w http.ResponseWriter, r *http.Request, rentalID uint64) {
	swaps, err := g.rentals.SwapHistory(rentalID)
	if errs.KindOf(err) == errs.KindNotFound {
		chainID, ok, cerr := g.fallbackChain(r)
		if cerr != nil {
			writeError(w, cerr)
			return
		}
		if ok {
			swaps, err = g.chain.GetSwapHistory(r.Context(), chainID, rentalID)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"swaps": swaps})
}

type executeSwapRequest struct {
	TokenIn      string `json:"tokenIn"`
	AmountIn     string `json:"amountIn"`
	MinAmountOut string `json:"minAmountOut"`
}

func (g *Gateway) handleExecuteSwap(w http.ResponseWriter, r *http.Request, rentalID uint64) {
	var req executeSwapRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tokenIn, err := parseAddress(req.TokenIn, "tokenIn")
	if err != nil {
		writeError(w, err)
		return
	}
	amountIn, err := parseUint256(req.AmountIn, "amountIn")
	if err != nil {
		writeError(w, err)
		return
	}
	minAmountOut, err := parseUint256(req.MinAmountOut, "minAmountOut")
	if err != nil {
		writeError(w, err)
		return
	}

	txHash, err := g.rentals.ExecuteSwap(r.Context(), rentalID, tokenIn, amountIn, minAmountOut)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"txHash": txHash.Hex()})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return errs.Validationf("malformed request body: %v", err)
	}
	return nil
}

func parseAddress(value, field string) (common.Address, error) {
	if !addressPattern.MatchString(value) {
		return common.Address{}, errs.Validationf("%s must be a 0x-prefixed 40-hex-digit address", field)
	}
	return common.HexToAddress(value), nil
}

func parseUint256(value, field string) (*big.Int, error) {
	parsed, err := model.ParseAmount(value)
	if err != nil || parsed.Sign() < 0 {
		return nil, errs.Validationf("%s must be a non-negative decimal integer", field)
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(kind, message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]string{"kind": kind, "message": message},
	}
}

// writeError maps the taxonomy to a status code. Unknown kinds are
// reported generically so internals never leak into response bodies.
func writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	kind := errs.KindOf(err)
	message := err.Error()
	if kind == errs.KindUnknown {
		message = "internal error"
	}
	writeJSON(w, status, errorBody(kind.String(), message))
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody("validation", "method not allowed"))
}
