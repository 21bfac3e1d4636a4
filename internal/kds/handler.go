package kds

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/appetiteclub/kds/pkg/enums/sortmode"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	MaxBodyBytes     = 1 << 20
	DebounceInterval = 500 * time.Millisecond
)

type Handler struct {
	engine   *Engine
	logger   apt.Logger
	config   *apt.Config
	tlm      *telemetry.HTTP
	debounce *debouncer
}

func NewHandler(engine *Engine, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		engine:   engine,
		logger:   logger,
		config:   config,
		tlm:      telemetry.NewHTTP(),
		debounce: newDebouncer(DebounceInterval, engine.clock),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.PlaceOrder)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/priority", h.SetPriority)
		r.Patch("/{id}/cancel", h.CancelOrder)
	})
	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", h.ListTickets)
		r.Get("/{id}", h.GetTicket)
		r.Patch("/{id}/start", h.StartTicket)
		r.Patch("/{id}/ready", h.ReadyTicket)
		r.Patch("/{id}/bump", h.BumpTicket)
		r.Patch("/{id}/recall", h.RecallTicket)
		r.Patch("/{id}/fire", h.FireTicket)
		r.Patch("/{id}/transfer", h.TransferTicket)
	})
	r.Get("/allday", h.AllDay)
	r.Get("/metrics", h.EngineMetrics)
	r.Get("/stations", h.ListStations)
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PlaceOrder")
	defer finish()
	log := h.log(r)

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	placed, tickets, err := h.engine.PlaceOrder(&order)
	if err != nil {
		log.Errorf("cannot place order: %v", err)
		h.respondEngineError(w, err)
		return
	}

	apt.Respond(w, http.StatusCreated, map[string]interface{}{
		"order":   placed,
		"tickets": tickets,
	}, nil)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrder")
	defer finish()

	id, ok := h.parseID(w, r, "Invalid order ID")
	if !ok {
		return
	}

	order, err := h.engine.GetOrder(id)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	apt.Respond(w, http.StatusOK, order, nil)
}

func (h *Handler) SetPriority(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetPriority")
	defer finish()
	log := h.log(r)

	id, ok := h.parseID(w, r, "Invalid order ID")
	if !ok {
		return
	}

	var payload struct {
		Priority string `json:"priority"`
	}
	if !h.decodeBody(w, r, &payload) {
		return
	}

	order, err := h.engine.SetPriority(id, payload.Priority)
	if err != nil {
		log.Errorf("cannot set priority: %v", err)
		h.respondEngineError(w, err)
		return
	}
	apt.Respond(w, http.StatusOK, order, nil)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CancelOrder")
	defer finish()
	log := h.log(r)

	id, ok := h.parseID(w, r, "Invalid order ID")
	if !ok {
		return
	}

	order, err := h.engine.Cancel(id)
	if err != nil {
		log.Errorf("cannot cancel order: %v", err)
		h.respondEngineError(w, err)
		return
	}
	apt.Respond(w, http.StatusOK, order, nil)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTickets")
	defer finish()

	filter := TicketFilter{}
	if stations := r.URL.Query().Get("stations"); stations != "" {
		filter.Stations = splitCSV(stations)
	}
	if r.URL.Query().Get("show_completed") == "true" {
		filter.ShowCompleted = true
	}
	if modeStr := r.URL.Query().Get("sort"); modeStr != "" {
		mode := sortmode.ByName(modeStr)
		if mode == nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid sort mode")
			return
		}
		filter.SortMode = *mode
	}

	tickets := h.engine.ListTickets(filter)
	apt.Respond(w, http.StatusOK, map[string]interface{}{
		"tickets": tickets,
	}, nil)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetTicket")
	defer finish()

	id, ok := h.parseID(w, r, "Invalid ticket ID")
	if !ok {
		return
	}

	ticket, err := h.engine.GetTicket(id)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	now := h.engine.clock()
	apt.Respond(w, http.StatusOK, map[string]interface{}{
		"ticket":          ticket,
		"elapsed_seconds": ticket.Elapsed(now).Seconds(),
		"urgency":         ticket.Urgency(now, h.engine.thresholds),
	}, nil)
}

func (h *Handler) StartTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, "start", func(id TicketID) (*Ticket, error) { return h.engine.Start(id) })
}

func (h *Handler) ReadyTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, "ready", func(id TicketID) (*Ticket, error) { return h.engine.Ready(id) })
}

func (h *Handler) BumpTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, "bump", func(id TicketID) (*Ticket, error) { return h.engine.Bump(id) })
}

func (h *Handler) RecallTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, "recall", func(id TicketID) (*Ticket, error) { return h.engine.Recall(id) })
}

func (h *Handler) FireTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, "fire", func(id TicketID) (*Ticket, error) { return h.engine.Fire(id) })
}

func (h *Handler) TransferTicket(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.TransferTicket")
	defer finish()
	log := h.log(r)

	id, ok := h.parseID(w, r, "Invalid ticket ID")
	if !ok {
		return
	}

	var payload struct {
		Station string `json:"station"`
	}
	if !h.decodeBody(w, r, &payload) {
		return
	}

	ticket, err := h.engine.TransferStation(id, payload.Station)
	if err != nil {
		log.Errorf("cannot transfer ticket: %v", err)
		h.respondEngineError(w, err)
		return
	}
	apt.Respond(w, http.StatusOK, ticket, nil)
}

func (h *Handler) AllDay(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AllDay")
	defer finish()

	var stations []string
	if s := r.URL.Query().Get("stations"); s != "" {
		stations = splitCSV(s)
	}

	items := h.engine.AllDay(stations)
	apt.Respond(w, http.StatusOK, map[string]interface{}{
		"items": items,
	}, nil)
}

func (h *Handler) EngineMetrics(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.EngineMetrics")
	defer finish()

	apt.Respond(w, http.StatusOK, h.engine.Metrics(), nil)
}

func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListStations")
	defer finish()

	apt.Respond(w, http.StatusOK, map[string]interface{}{
		"stations": h.engine.registry.All(),
	}, nil)
}

// ticketAction runs one debounced per-ticket transition. The debounce
// absorbs double taps at the display; the engine stays safe without it.
func (h *Handler) ticketAction(w http.ResponseWriter, r *http.Request, action string, fn func(TicketID) (*Ticket, error)) {
	w, r, finish := h.tlm.Start(w, r, "Handler."+action+"Ticket")
	defer finish()
	log := h.log(r)

	id, ok := h.parseID(w, r, "Invalid ticket ID")
	if !ok {
		return
	}

	if !h.debounce.allow(action, id) {
		apt.RespondError(w, http.StatusTooManyRequests, "Duplicate action, slow down")
		return
	}

	ticket, err := fn(id)
	if err != nil {
		log.Errorf("cannot %s ticket: %v", action, err)
		h.respondEngineError(w, err)
		return
	}
	apt.Respond(w, http.StatusOK, ticket, nil)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, msg)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

// respondEngineError maps error kinds to statuses, keeping the reason
// specific so the display can tell "already bumped" from "backend down".
func (h *Handler) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		apt.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidArgument):
		apt.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		apt.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnavailable):
		apt.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		apt.RespondError(w, http.StatusInternalServerError, "Unexpected error")
	}
}

// debouncer drops repeats of the same action on the same ticket inside
// the interval.
type debouncer struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	clock    func() time.Time
}

func newDebouncer(interval time.Duration, clock func() time.Time) *debouncer {
	if clock == nil {
		clock = time.Now
	}
	return &debouncer{
		last:     make(map[string]time.Time),
		interval: interval,
		clock:    clock,
	}
}

func (d *debouncer) allow(action string, id uuid.UUID) bool {
	key := action + ":" + id.String()
	now := d.clock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.last[key]; ok && now.Sub(prev) < d.interval {
		return false
	}
	d.last[key] = now
	return true
}
