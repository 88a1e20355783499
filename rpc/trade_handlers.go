package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"tradevault/crypto"
	"tradevault/native/trade"
)

const (
	codeTradeInvalidParams = -32021
	codeTradeNotFound      = -32022
	codeTradeForbidden     = -32023
	codeTradeConflict      = -32024
	codeTradeUpstream      = -32025
	codeTradeInternal      = -32026
)

type tradeCreateParams struct {
	Configurator string `json:"configurator"`
	Proposer     string `json:"proposer"`
	Receiver     string `json:"receiver"`
	Nonce        string `json:"nonce"`
}

type tradeConfigureParams struct {
	ID             string   `json:"id"`
	Caller         string   `json:"caller"`
	Role           string   `json:"role"`
	ItemRegistries []string `json:"itemRegistries"`
	ItemIDs        []string `json:"itemIds"`
	FundRegistries []string `json:"fundRegistries"`
	Amounts        []string `json:"amounts"`
}

type tradeActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type tradeIDParams struct {
	ID string `json:"id"`
}

type tradeNativeParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type tradeBalanceParams struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

type assetJSON struct {
	Registry  string `json:"registry"`
	ItemID    string `json:"itemId,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Deposited bool   `json:"deposited"`
}

type participantJSON struct {
	Address string      `json:"address"`
	Items   []assetJSON `json:"items"`
	Funds   []assetJSON `json:"funds"`
}

type tradeJSON struct {
	ID           string          `json:"id"`
	Configurator string          `json:"configurator"`
	Proposer     participantJSON `json:"proposer"`
	Receiver     participantJSON `json:"receiver"`
	State        string          `json:"state"`
	CreatedAt    int64           `json:"createdAt"`
}

func participantToJSON(p *trade.Participant) participantJSON {
	out := participantJSON{
		Address: crypto.NewAddress(crypto.TVPrefix, p.Address[:]).String(),
		Items:   make([]assetJSON, 0, len(p.Items)),
		Funds:   make([]assetJSON, 0, len(p.Funds)),
	}
	for i := range p.Items {
		out.Items = append(out.Items, assetJSON{
			Registry:  crypto.NewAddress(crypto.TVPrefix, p.Items[i].Registry[:]).String(),
			ItemID:    p.Items[i].ItemID.String(),
			Deposited: p.Items[i].Deposited,
		})
	}
	for i := range p.Funds {
		out.Funds = append(out.Funds, assetJSON{
			Registry:  crypto.NewAddress(crypto.TVPrefix, p.Funds[i].Registry[:]).String(),
			Amount:    p.Funds[i].Amount.String(),
			Deposited: p.Funds[i].Deposited,
		})
	}
	return out
}

func tradeToJSON(t *trade.Trade) tradeJSON {
	return tradeJSON{
		ID:           hex.EncodeToString(t.ID[:]),
		Configurator: crypto.NewAddress(crypto.TVPrefix, t.Configurator[:]).String(),
		Proposer:     participantToJSON(&t.Proposer),
		Receiver:     participantToJSON(&t.Receiver),
		State:        t.State.String(),
		CreatedAt:    t.CreatedAt,
	}
}

func parseAddress(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func parseTradeID(value string) ([32]byte, error) {
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("trade id must be 32 hex-encoded bytes")
	}
	var id [32]byte
	copy(id[:], raw)
	return id, nil
}

func parseNonce(value string) ([32]byte, error) {
	if value == "" {
		return [32]byte{}, nil
	}
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) > 32 {
		return [32]byte{}, fmt.Errorf("nonce must be at most 32 hex-encoded bytes")
	}
	var nonce [32]byte
	copy(nonce[:], raw)
	return nonce, nil
}

func parseAmount(value string) (*big.Int, error) {
	amt, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a base-10 integer")
	}
	return amt, nil
}

func (s *Server) decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "expected one parameter object", nil)
		return false
	}
	if err := jsonUnmarshalStrict(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, err.Error(), nil)
		return false
	}
	return true
}

// writeEngineError maps engine errors to RPC error codes. Returns the metric
// outcome label.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) string {
	switch {
	case errors.Is(err, trade.ErrUnauthorized):
		writeError(w, http.StatusForbidden, req.ID, codeTradeForbidden, err.Error(), nil)
		return "forbidden"
	case errors.Is(err, trade.ErrInvalidState), errors.Is(err, trade.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, req.ID, codeTradeConflict, err.Error(), nil)
		return "conflict"
	case errors.Is(err, trade.ErrLengthMismatch):
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, err.Error(), nil)
		return "invalid_params"
	case errors.Is(err, trade.ErrExternalCall):
		writeError(w, http.StatusBadGateway, req.ID, codeTradeUpstream, err.Error(), nil)
		return "upstream"
	case errors.Is(err, trade.ErrTradeNotFound):
		writeError(w, http.StatusNotFound, req.ID, codeTradeNotFound, err.Error(), nil)
		return "not_found"
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInternal, err.Error(), nil)
		return "error"
	}
}

func (s *Server) commitAndWrite(w http.ResponseWriter, req *RPCRequest, result interface{}) string {
	if err := s.state.Commit(); err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeTradeInternal, "failed to persist state", err.Error())
		return "error"
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleTradeCreate(w http.ResponseWriter, req *RPCRequest) string {
	var params tradeCreateParams
	if !s.decodeParams(w, req, &params) {
		return "invalid_params"
	}
	configurator, err := parseAddress(params.Configurator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid configurator address", nil)
		return "invalid_params"
	}
	proposer, err := parseAddress(params.Proposer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid proposer address", nil)
		return "invalid_params"
	}
	receiver, err := parseAddress(params.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid receiver address", nil)
		return "invalid_params"
	}
	nonce, err := parseNonce(params.Nonce)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	t, err := s.engine.CreateTrade(configurator, proposer, receiver, nonce)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	return s.commitAndWrite(w, req, tradeToJSON(t))
}

func (s *Server) handleTradeConfigure(w http.ResponseWriter, req *RPCRequest) string {
	var params tradeConfigureParams
	if !s.decodeParams(w, req, &params) {
		return "invalid_params"
	}
	id, err := parseTradeID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid caller address", nil)
		return "invalid_params"
	}
	var role trade.Role
	switch params.Role {
	case "proposer":
		role = trade.RoleProposer
	case "receiver":
		role = trade.RoleReceiver
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "role must be proposer or receiver", nil)
		return "invalid_params"
	}
	itemRegistries := make([][20]byte, 0, len(params.ItemRegistries))
	for _, reg := range params.ItemRegistries {
		addr, err := parseAddress(reg)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid item registry address", nil)
			return "invalid_params"
		}
		itemRegistries = append(itemRegistries, addr)
	}
	itemIDs := make([]*big.Int, 0, len(params.ItemIDs))
	for _, raw := range params.ItemIDs {
		itemID, err := parseAmount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid item identifier", nil)
			return "invalid_params"
		}
		itemIDs = append(itemIDs, itemID)
	}
	fundRegistries := make([][20]byte, 0, len(params.FundRegistries))
	for _, reg := range params.FundRegistries {
		addr, err := parseAddress(reg)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid fund registry address", nil)
			return "invalid_params"
		}
		fundRegistries = append(fundRegistries, addr)
	}
	amounts := make([]*big.Int, 0, len(params.Amounts))
	for _, raw := range params.Amounts {
		amt, err := parseAmount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid amount", nil)
			return "invalid_params"
		}
		amounts = append(amounts, amt)
	}
	if err := s.engine.ConfigureParticipant(id, caller, role, itemRegistries, itemIDs, fundRegistries, amounts); err != nil {
		return s.writeEngineError(w, req, err)
	}
	return s.commitAndWrite(w, req, true)
}

func (s *Server) actorCall(w http.ResponseWriter, req *RPCRequest, fn func(id [32]byte, caller [20]byte) error) string {
	var params tradeActorParams
	if !s.decodeParams(w, req, &params) {
		return "invalid_params"
	}
	id, err := parseTradeID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid caller address", nil)
		return "invalid_params"
	}
	if err := fn(id, caller); err != nil {
		return s.writeEngineError(w, req, err)
	}
	return s.commitAndWrite(w, req, true)
}

func (s *Server) handleTradeCloseSetup(w http.ResponseWriter, req *RPCRequest) string {
	return s.actorCall(w, req, s.engine.CloseSetup)
}

func (s *Server) handleTradeDeposit(w http.ResponseWriter, req *RPCRequest) string {
	return s.actorCall(w, req, s.engine.DepositAssets)
}

func (s *Server) handleTradeWithdraw(w http.ResponseWriter, req *RPCRequest) string {
	return s.actorCall(w, req, s.engine.WithdrawAssets)
}

func (s *Server) handleTradeCancel(w http.ResponseWriter, req *RPCRequest) string {
	return s.actorCall(w, req, s.engine.CancelTrade)
}

func (s *Server) handleTradeGet(w http.ResponseWriter, req *RPCRequest) string {
	var params tradeIDParams
	if !s.decodeParams(w, req, &params) {
		return "invalid_params"
	}
	id, err := parseTradeID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	t, err := s.engine.Get(id)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, tradeToJSON(t))
	return "ok"
}

func (s *Server) nativeCall(w http.ResponseWriter, req *RPCRequest, fn func(id [32]byte, caller [20]byte, amount *big.Int) error) string {
	var params tradeNativeParams
	if !s.decodeParams(w, req, &params) {
		return "invalid_params"
	}
	id, err := parseTradeID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid caller address", nil)
		return "invalid_params"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	if err := fn(id, caller, amount); err != nil {
		return s.writeEngineError(w, req, err)
	}
	return s.commitAndWrite(w, req, true)
}

func (s *Server) handleTradeDepositNative(w http.ResponseWriter, req *RPCRequest) string {
	return s.nativeCall(w, req, s.engine.DepositNative)
}

func (s *Server) handleTradeWithdrawNative(w http.ResponseWriter, req *RPCRequest) string {
	return s.nativeCall(w, req, s.engine.WithdrawNative)
}

func (s *Server) handleTradeNativeBalance(w http.ResponseWriter, req *RPCRequest) string {
	var params tradeBalanceParams
	if !s.decodeParams(w, req, &params) {
		return "invalid_params"
	}
	id, err := parseTradeID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid address", nil)
		return "invalid_params"
	}
	balance, err := s.engine.NativeBalance(id, addr)
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, balance.String())
	return "ok"
}
