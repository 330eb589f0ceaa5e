package gateway

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"poolRental/internal/chain"
	"poolRental/internal/channel"
	"poolRental/internal/errs"
	"poolRental/internal/ledger"
	"poolRental/internal/model"
	"poolRental/internal/registry"
	"poolRental/internal/rental"
)

var (
	ownerAddr  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	renterAddr = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	tokenAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fakePools struct{}

func (fakePools) GetPool(_ context.Context, chainID, poolID uint64) (model.Pool, error) {
	if poolID == 404 {
		return model.Pool{}, registry.ErrPoolNotFound
	}
	return model.Pool{ChainID: chainID, PoolID: poolID, Owner: ownerAddr.Hex(), Exists: true}, nil
}

type fakeChain struct {
	onChain map[uint64][]uint64
	rental  *model.Rental
	profits *model.ProfitBreakdown
	swaps   []model.SwapDetail
}

func (f *fakeChain) Supported(chainID uint64) bool {
	return chainID == 56
}

func (f *fakeChain) RenterRentals(_ context.Context, chainID uint64, renter common.Address) ([]uint64, error) {
	return f.onChain[chainID], nil
}

func (f *fakeChain) GetRental(_ context.Context, _, rentalID uint64) (model.Rental, error) {
	if f.rental != nil && f.rental.RentalID == rentalID {
		return *f.rental, nil
	}
	return model.Rental{}, errs.NotFoundf("rental not found")
}

func (f *fakeChain) GetRentalProfits(_ context.Context, _, rentalID uint64) (model.ProfitBreakdown, error) {
	if f.profits != nil && f.profits.RentalID == rentalID {
		return *f.profits, nil
	}
	return model.ProfitBreakdown{}, errs.NotFoundf("rental not found")
}

func (f *fakeChain) GetSwapHistory(_ context.Context, _, rentalID uint64) ([]model.SwapDetail, error) {
	return f.swaps, nil
}

type denyGate struct{}

func (denyGate) Allow(string) bool { return false }

func newTestGateway(t *testing.T) (*Gateway, *rental.Manager, *channel.Manager) {
	t.Helper()
	rentals := rental.NewManager(fakePools{}, ledger.New(), nil, chain.NewMockSettler(nil), nil)
	channels := channel.NewManager(chain.NewMockSettler(nil), 56, nil, nil)
	chainReader := &fakeChain{onChain: map[uint64][]uint64{56: {42}}}
	return New(rentals, channels, chainReader, nil, nil), rentals, channels
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeMap(t, rec)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("no error object in %q", rec.Body.String())
	}
	kind, _ := errObj["kind"].(string)
	return kind
}

func TestChannelOpenAndMockClose(t *testing.T) {
	g, _, _ := newTestGateway(t)
	handler := g.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/channel/open",
		`{"token":"`+tokenAddr.Hex()+`","amount":"1000"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("open status: got %d body %s", rec.Code, rec.Body.String())
	}
	opened := decodeMap(t, rec)
	channelID, _ := opened["channelId"].(string)
	if len(channelID) != 66 {
		t.Fatalf("channelId: got %q", channelID)
	}
	if mock, _ := opened["mock"].(bool); !mock {
		t.Fatal("mock settler must flag the channel")
	}

	rec = doRequest(t, handler, http.MethodPost, "/channel/close",
		`{"channelId":"`+channelID+`","finalBalance":"900"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("close status: got %d body %s", rec.Code, rec.Body.String())
	}
	closed := decodeMap(t, rec)
	if closed["status"] != "settled_mock" {
		t.Fatalf("close status field: got %v", closed["status"])
	}
	if closed["txHash"] != chain.MockTxHash.Hex() {
		t.Fatalf("txHash: got %v", closed["txHash"])
	}

	// Second close is a conflict, no double settlement.
	rec = doRequest(t, handler, http.MethodPost, "/channel/close",
		`{"channelId":"`+channelID+`","finalBalance":"900"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double close status: got %d", rec.Code)
	}
	if kind := errorKind(t, rec); kind != "conflict" {
		t.Fatalf("double close kind: got %s", kind)
	}
}

func TestChannelOpenValidation(t *testing.T) {
	g, _, _ := newTestGateway(t)
	handler := g.Handler()

	cases := []struct {
		name string
		body string
	}{
		{"bad token", `{"token":"nope","amount":"1"}`},
		{"negative amount", `{"token":"` + tokenAddr.Hex() + `","amount":"-1"}`},
		{"non-numeric amount", `{"token":"` + tokenAddr.Hex() + `","amount":"1.5e9"}`},
		{"unknown field", `{"token":"` + tokenAddr.Hex() + `","amount":"1","extra":true}`},
	}
	for _, tc := range cases {
		rec := doRequest(t, handler, http.MethodPost, "/channel/open", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status got %d", tc.name, rec.Code)
		}
		if kind := errorKind(t, rec); kind != "validation" {
			t.Fatalf("%s: kind got %s", tc.name, kind)
		}
	}
}

func TestChannelCloseUnknownID(t *testing.T) {
	g, _, _ := newTestGateway(t)

	rec := doRequest(t, g.Handler(), http.MethodPost, "/channel/close",
		`{"channelId":"0x`+strings.Repeat("ab", 32)+`","finalBalance":"1"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestRentalListValidation(t *testing.T) {
	g, _, _ := newTestGateway(t)
	handler := g.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/rentals?address=not-an-address&chainId=56", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address status: got %d", rec.Code)
	}
	if kind := errorKind(t, rec); kind != "validation" {
		t.Fatalf("bad address kind: got %s", kind)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals?address="+renterAddr.Hex()+"&chainId=999", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported chain status: got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals?address="+renterAddr.Hex()+"&chainId=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad chain id status: got %d", rec.Code)
	}
}

func TestRentalListMergesChainAndLocal(t *testing.T) {
	g, rentals, _ := newTestGateway(t)

	localID, err := rentals.CreateRental(context.Background(), 56, 1, renterAddr, 3600, big.NewInt(1))
	if err != nil {
		t.Fatalf("create rental: %v", err)
	}

	rec := doRequest(t, g.Handler(), http.MethodGet, "/rentals?address="+renterAddr.Hex()+"&chainId=56", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Rentals []uint64 `json:"rentals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Rentals) != 2 {
		t.Fatalf("rentals: got %v", out.Rentals)
	}
	found := map[uint64]bool{}
	for _, id := range out.Rentals {
		found[id] = true
	}
	if !found[42] || !found[localID] {
		t.Fatalf("expected on-chain 42 and local %d, got %v", localID, out.Rentals)
	}
}

func TestRentalDetailEndpoints(t *testing.T) {
	g, rentals, _ := newTestGateway(t)
	handler := g.Handler()

	id, err := rentals.CreateRental(context.Background(), 56, 1, renterAddr, 3600, big.NewInt(58))
	if err != nil {
		t.Fatalf("create rental: %v", err)
	}
	if _, err := rentals.RecordSwap(context.Background(), id, model.SwapDetail{AmountIn: "100", FeeCharged: "10", GasPrice: "1"}); err != nil {
		t.Fatalf("record swap: %v", err)
	}

	rec := doRequest(t, handler, http.MethodGet, "/rentals/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status: got %d", rec.Code)
	}
	var got model.Rental
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode rental: %v", err)
	}
	if got.RentalID != id || got.SwapCount != 1 {
		t.Fatalf("rental detail: %+v", got)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals/1/profits?gas=500", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profits status: got %d body %s", rec.Code, rec.Body.String())
	}
	var breakdown model.ProfitBreakdown
	if err := json.Unmarshal(rec.Body.Bytes(), &breakdown); err != nil {
		t.Fatalf("decode breakdown: %v", err)
	}
	if breakdown.GasCostEstimate != "500" {
		t.Fatalf("gas estimate: got %s", breakdown.GasCostEstimate)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals/1/swaps", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("swaps status: got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals/9999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown rental status: got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals/1/nonsense", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown subresource status: got %d", rec.Code)
	}
}

func TestRentalDetailChainFallback(t *testing.T) {
	rentals := rental.NewManager(fakePools{}, ledger.New(), nil, nil, nil)
	channels := channel.NewManager(chain.NewMockSettler(nil), 56, nil, nil)
	reader := &fakeChain{
		rental: &model.Rental{RentalID: 777, ChainID: 56, Renter: renterAddr.Hex(), Status: model.RentalStatusEnded},
		profits: &model.ProfitBreakdown{
			RentalID:        777,
			TotalFeesEarned: "6000",
			RentalCostPaid:  "208800",
			GasCostEstimate: "500",
			GrossProfit:     "-202800",
			NetProfit:       "-203300",
			ROIBasisPoints:  -9736,
		},
		swaps: []model.SwapDetail{{RentalID: 777, Sequence: 1, AmountIn: "100"}},
	}
	handler := New(rentals, channels, reader, nil, nil).Handler()

	// Without a chain hint an untracked rental stays not found.
	rec := doRequest(t, handler, http.MethodGet, "/rentals/777", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no hint status: got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals/777?chainId=56", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("fallback status: got %d body %s", rec.Code, rec.Body.String())
	}
	var got model.Rental
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode rental: %v", err)
	}
	if got.RentalID != 777 {
		t.Fatalf("fallback rental: %+v", got)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals/777?chainId=999", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported chain status: got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals/777/swaps?chainId=56", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("swaps fallback status: got %d", rec.Code)
	}
	var history struct {
		Swaps []model.SwapDetail `json:"swaps"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode swaps: %v", err)
	}
	if len(history.Swaps) != 1 || history.Swaps[0].Sequence != 1 {
		t.Fatalf("swaps fallback: %+v", history.Swaps)
	}

	rec = doRequest(t, handler, http.MethodGet, "/rentals/777/profits?chainId=56&decimals=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profits fallback status: got %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeMap(t, rec)
	if body["roi_basis_points"].(float64) != -9736 {
		t.Fatalf("roi basis points: %v", body["roi_basis_points"])
	}
	display, ok := body["display"].(map[string]interface{})
	if !ok {
		t.Fatalf("no display object in %s", rec.Body.String())
	}
	if display["net_profit"] != "-203.3" {
		t.Fatalf("display net profit: %v", display["net_profit"])
	}
	if display["roi"] != "-97.36%" {
		t.Fatalf("display roi: %v", display["roi"])
	}
	if display["total_fees_earned"] != "6" {
		t.Fatalf("display fees: %v", display["total_fees_earned"])
	}
}

func TestProfitDisplayValidation(t *testing.T) {
	g, rentals, _ := newTestGateway(t)
	handler := g.Handler()

	if _, err := rentals.CreateRental(context.Background(), 56, 1, renterAddr, 3600, big.NewInt(1)); err != nil {
		t.Fatalf("create rental: %v", err)
	}

	for _, raw := range []string{"abc", "-1", "78"} {
		rec := doRequest(t, handler, http.MethodGet, "/rentals/1/profits?decimals="+raw, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("decimals=%s: status got %d", raw, rec.Code)
		}
	}
}

func TestExecuteSwapEndpoint(t *testing.T) {
	g, rentals, _ := newTestGateway(t)
	handler := g.Handler()

	if _, err := rentals.CreateRental(context.Background(), 56, 1, renterAddr, 3600, big.NewInt(1)); err != nil {
		t.Fatalf("create rental: %v", err)
	}

	body := `{"tokenIn":"` + tokenAddr.Hex() + `","amountIn":"500","minAmountOut":"490"}`
	rec := doRequest(t, handler, http.MethodPost, "/rentals/1/swaps", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute status: got %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeMap(t, rec)["txHash"]; got != chain.MockTxHash.Hex() {
		t.Fatalf("txHash: got %v", got)
	}

	rec = doRequest(t, handler, http.MethodPost, "/rentals/1/swaps",
		`{"tokenIn":"nope","amountIn":"1","minAmountOut":"0"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad token status: got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/rentals/9999/swaps", body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown rental status: got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPut, "/rentals/1/swaps", body)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("put status: got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	g, _, _ := newTestGateway(t)
	handler := g.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/channel/open", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodPost, "/rentals?address="+renterAddr.Hex()+"&chainId=56", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestAdmissionGateDenies(t *testing.T) {
	rentals := rental.NewManager(fakePools{}, ledger.New(), nil, nil, nil)
	channels := channel.NewManager(chain.NewMockSettler(nil), 56, nil, nil)
	g := New(rentals, channels, &fakeChain{}, denyGate{}, nil)

	rec := doRequest(t, g.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	g, _, _ := newTestGateway(t)
	rec := doRequest(t, g.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if got := decodeMap(t, rec)["status"]; got != "ok" {
		t.Fatalf("health body: %v", got)
	}
}
