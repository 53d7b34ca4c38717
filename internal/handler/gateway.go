package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/gateway"
	"github.com/efreitasn/futuresim/internal/playback"
)

// GatewayHandler handles HTTP requests for gateway endpoints.
type GatewayHandler struct {
	manager *gateway.Manager
}

// NewGatewayHandler creates a new GatewayHandler.
func NewGatewayHandler(manager *gateway.Manager) *GatewayHandler {
	return &GatewayHandler{manager: manager}
}

// createGatewayRequest is the JSON request body for POST /gateway.
type createGatewayRequest struct {
	GatewayID       string           `json:"gatewayId"`
	Kind            string           `json:"kind"`
	Symbols         []string         `json:"symbols"`
	MarketGatewayID string           `json:"marketGatewayId"`
	Playback        *playbackRequest `json:"playback"`
}

// playbackRequest carries the replay window. Speed is a preset name
// (slow, normal, fast) or a number.
type playbackRequest struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Precision string `json:"precision"`
	Speed     any    `json:"speed"`
}

type playbackResponse struct {
	Start     string             `json:"start"`
	End       string             `json:"end"`
	Precision string             `json:"precision"`
	Speed     float64            `json:"speed"`
	Progress  *playback.Progress `json:"progress,omitempty"`
}

// gatewayResponse is the JSON view of a gateway.
type gatewayResponse struct {
	GatewayID       string            `json:"gatewayId"`
	Kind            string            `json:"kind"`
	State           string            `json:"state"`
	Symbols         []string          `json:"symbols"`
	MarketGatewayID string            `json:"marketGatewayId"`
	LastError       string            `json:"lastError,omitempty"`
	Playback        *playbackResponse `json:"playback,omitempty"`
	CreatedAt       string            `json:"createdAt"`
	UpdatedAt       string            `json:"updatedAt"`
}

type gatewayListResponse struct {
	Gateways []gatewayResponse `json:"gateways"`
}

// Create handles POST /gateway.
func (h *GatewayHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGatewayRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	settings, err := buildSettings(req)
	if err != nil {
		mapError(w, err)
		return
	}

	g, err := h.manager.Create(req.GatewayID, settings)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, h.buildGatewayResponse(g))
}

// List handles GET /gateway?kind=.
func (h *GatewayHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := domain.GatewayKind(r.URL.Query().Get("kind"))
	switch kind {
	case "", domain.GatewayKindSimMarketData, domain.GatewayKindSimTrade, domain.GatewayKindPlayback:
	default:
		WriteError(w, http.StatusBadRequest, domain.ErrInvalidConfig.Error(),
			"kind must be one of: sim_market_data, sim_trade, playback")
		return
	}

	gateways := h.manager.List(kind)
	resp := gatewayListResponse{Gateways: make([]gatewayResponse, len(gateways))}
	for i, g := range gateways {
		resp.Gateways[i] = h.buildGatewayResponse(g)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Detail handles GET /gateway/detail?gatewayId=.
func (h *GatewayHandler) Detail(w http.ResponseWriter, r *http.Request) {
	gatewayID, ok := requireQuery(w, r, "gatewayId")
	if !ok {
		return
	}
	g, err := h.manager.Get(gatewayID)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.buildGatewayResponse(g))
}

// Connect handles POST /gateway/connection?gatewayId=.
func (h *GatewayHandler) Connect(w http.ResponseWriter, r *http.Request) {
	gatewayID, ok := requireQuery(w, r, "gatewayId")
	if !ok {
		return
	}
	g, err := h.manager.Connect(r.Context(), gatewayID)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.buildGatewayResponse(g))
}

// Disconnect handles DELETE /gateway/connection?gatewayId=.
func (h *GatewayHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	gatewayID, ok := requireQuery(w, r, "gatewayId")
	if !ok {
		return
	}
	g, err := h.manager.Disconnect(gatewayID)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.buildGatewayResponse(g))
}

// Delete handles DELETE /gateway?gatewayId=.
func (h *GatewayHandler) Delete(w http.ResponseWriter, r *http.Request) {
	gatewayID, ok := requireQuery(w, r, "gatewayId")
	if !ok {
		return
	}
	if err := h.manager.Delete(gatewayID); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildSettings(req createGatewayRequest) (domain.GatewaySettings, error) {
	switch domain.GatewayKind(req.Kind) {
	case domain.GatewayKindSimMarketData:
		return domain.SimMarketSettings{Symbols: req.Symbols}, nil
	case domain.GatewayKindSimTrade:
		return domain.SimTradeSettings{MarketGatewayID: req.MarketGatewayID}, nil
	case domain.GatewayKindPlayback:
		if req.Playback == nil {
			return nil, domain.Invalidf("playback settings are required for a playback gateway")
		}
		return buildPlaybackSettings(req.Symbols, *req.Playback)
	default:
		return nil, domain.Invalidf("kind must be one of: sim_market_data, sim_trade, playback")
	}
}

func buildPlaybackSettings(symbols []string, req playbackRequest) (domain.GatewaySettings, error) {
	start, err := parseDate(req.Start)
	if err != nil {
		return nil, domain.Invalidf("playback.start must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	end, err := parseDate(req.End)
	if err != nil {
		return nil, domain.Invalidf("playback.end must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	precision, err := playback.ParsePrecision(req.Precision)
	if err != nil {
		return nil, err
	}

	var speedText string
	switch v := req.Speed.(type) {
	case nil:
	case string:
		speedText = v
	case float64:
		speedText = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil, domain.Invalidf("playback.speed must be a preset name or a number")
	}
	speed, err := playback.ParseSpeed(speedText)
	if err != nil {
		return nil, err
	}

	return domain.PlaybackSettings{
		Symbols:   symbols,
		Start:     start,
		End:       end,
		Precision: precision,
		Speed:     speed,
	}, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func (h *GatewayHandler) buildGatewayResponse(g domain.Gateway) gatewayResponse {
	resp := gatewayResponse{
		GatewayID: g.GatewayID,
		Kind:      string(g.Kind()),
		State:     string(g.State),
		Symbols:   g.SubscribedSymbols(),
		LastError: g.LastError,
		CreatedAt: formatTime(g.CreatedAt),
		UpdatedAt: formatTime(g.UpdatedAt),
	}
	if resp.Symbols == nil {
		resp.Symbols = []string{}
	}
	if g.Kind() == domain.GatewayKindSimTrade {
		resp.MarketGatewayID = g.MarketGatewayID()
	}
	if s, ok := g.Settings.(domain.PlaybackSettings); ok {
		pb := &playbackResponse{
			Start:     formatTime(s.Start),
			End:       formatTime(s.End),
			Precision: string(s.Precision),
			Speed:     s.Speed,
		}
		if progress, ok := h.manager.Playback(g.GatewayID); ok {
			pb.Progress = &progress
		}
		resp.Playback = pb
	}
	return resp
}

// requireQuery reads a mandatory query parameter, writing a 400 when it
// is missing.
func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		WriteError(w, http.StatusBadRequest, domain.ErrInvalidConfig.Error(), name+" query parameter is required")
		return "", false
	}
	return v, true
}
