package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/db"
	"github.com/thatsimonsguy/zone-heater/internal/command"
	"github.com/thatsimonsguy/zone-heater/internal/controlloop"
)

// Controller is the slice of the control loop the API needs.
type Controller interface {
	Status() controlloop.Status
	Submit(ev command.Event) bool
}

type Server struct {
	db   *sql.DB
	loop Controller
}

type ZoneTargetRequest struct {
	Target *float64 `json:"target"`
}

type HeaterRequest struct {
	On *bool `json:"on"`
}

type AutomationRequest struct {
	Active *bool `json:"active"`
}

type ValveModeRequest struct {
	Mode string `json:"mode"`
}

type FirmwareRequest struct {
	URL string `json:"url"`
}

type AcceptedResponse struct {
	Topic string `json:"topic"`
	Value string `json:"value"`
}

type ReadingResponse struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

type SummaryResponse struct {
	Zone    string  `json:"zone"`
	Field   string  `json:"field"`
	Samples int     `json:"samples"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Avg     float64 `json:"avg"`
}

type HeaterEventResponse struct {
	At              time.Time `json:"at"`
	On              bool      `json:"on"`
	Source          string    `json:"source"`
	MainTemperature *float64  `json:"main_temperature"`
}

type CommandResponse struct {
	At      time.Time `json:"at"`
	Topic   string    `json:"topic"`
	Value   string    `json:"value"`
	Outcome string    `json:"outcome"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the API. database may be nil, in which case the history endpoints
// report 503.
func NewServer(database *sql.DB, loop Controller) *Server {
	return &Server{
		db:   database,
		loop: loop,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(cors)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/zones", s.getZones).Methods(http.MethodGet)
	api.HandleFunc("/zones/{zone}", s.getZone).Methods(http.MethodGet)
	api.HandleFunc("/zones/{zone}/target", s.setZoneTarget).Methods(http.MethodPut)
	api.HandleFunc("/heater", s.setHeater).Methods(http.MethodPut)
	api.HandleFunc("/automation", s.setAutomation).Methods(http.MethodPut)
	api.HandleFunc("/valve-mode", s.setValveMode).Methods(http.MethodPut)
	api.HandleFunc("/sensors/scan", s.scanSensors).Methods(http.MethodPost)
	api.HandleFunc("/firmware", s.updateFirmware).Methods(http.MethodPost)

	history := api.PathPrefix("/history").Subrouter()
	history.HandleFunc("/zones", s.getSummaries).Methods(http.MethodGet)
	history.HandleFunc("/zones/{zone}/{field}", s.getReadings).Methods(http.MethodGet)
	history.HandleFunc("/heater", s.getHeaterEvents).Methods(http.MethodGet)
	history.HandleFunc("/commands", s.getCommands).Methods(http.MethodGet)

	// preflight requests need a route for the CORS middleware to run
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("REST API shutdown")
		}
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.loop.Status())
}

func (s *Server) getZones(w http.ResponseWriter, r *http.Request) {
	zones := s.loop.Status().Zones
	if zones == nil {
		zones = []controlloop.ZoneStatus{}
	}
	s.writeJSON(w, http.StatusOK, zones)
}

func (s *Server) findZone(name string) (controlloop.ZoneStatus, bool) {
	for _, z := range s.loop.Status().Zones {
		if z.Name == name {
			return z, true
		}
	}
	return controlloop.ZoneStatus{}, false
}

func (s *Server) getZone(w http.ResponseWriter, r *http.Request) {
	z, ok := s.findZone(mux.Vars(r)["zone"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Zone not found")
		return
	}
	s.writeJSON(w, http.StatusOK, z)
}

func (s *Server) setZoneTarget(w http.ResponseWriter, r *http.Request) {
	zone := mux.Vars(r)["zone"]

	var req ZoneTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if _, ok := s.findZone(zone); !ok {
		s.writeError(w, http.StatusNotFound, "Zone not found")
		return
	}

	s.submit(w, command.Event{Topic: zone + command.TopicTargetSuffix, Value: command.Number(*req.Target)})
}

func (s *Server) setHeater(w http.ResponseWriter, r *http.Request) {
	var req HeaterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	s.submit(w, command.Event{Topic: command.TopicToggle, Value: flag(*req.On)})
}

func (s *Server) setAutomation(w http.ResponseWriter, r *http.Request) {
	var req AutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	s.submit(w, command.Event{Topic: command.TopicAutomation, Value: flag(*req.Active)})
}

func (s *Server) setValveMode(w http.ResponseWriter, r *http.Request) {
	var req ValveModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var v command.Value
	switch req.Mode {
	case "on_off":
		v = flag(false)
	case "proportional":
		v = flag(true)
	default:
		s.writeError(w, http.StatusBadRequest, "Invalid valve mode. Valid modes: on_off, proportional")
		return
	}
	s.submit(w, command.Event{Topic: command.TopicValveMode, Value: v})
}

func (s *Server) scanSensors(w http.ResponseWriter, r *http.Request) {
	s.submit(w, command.Event{Topic: command.TopicSensorRequest})
}

func (s *Server) updateFirmware(w http.ResponseWriter, r *http.Request) {
	var req FirmwareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := command.ValidateURL(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid firmware url: "+err.Error())
		return
	}
	s.submit(w, command.Event{Topic: command.TopicFirmwareUpdate, Value: command.Text(req.URL)})
}

// submit hands the command to the loop. Commands are applied asynchronously, so the
// response only confirms that the command was queued.
func (s *Server) submit(w http.ResponseWriter, ev command.Event) {
	if !s.loop.Submit(ev) {
		log.Warn().Str("topic", ev.Topic).Msg("Command queue full, rejecting API request")
		s.writeError(w, http.StatusServiceUnavailable, "Command queue full")
		return
	}
	log.Info().Str("topic", ev.Topic).Str("value", ev.Value.String()).Msg("Command queued via API")
	s.writeJSON(w, http.StatusAccepted, AcceptedResponse{Topic: ev.Topic, Value: ev.Value.String()})
}

func (s *Server) getSummaries(w http.ResponseWriter, r *http.Request) {
	if !s.historyAvailable(w) {
		return
	}
	window, ok := s.durationParam(w, r, "window", 24*time.Hour)
	if !ok {
		return
	}

	sums, err := db.GetZoneSummaries(s.db, time.Now().Add(-window))
	if err != nil {
		log.Error().Err(err).Msg("Failed to get zone summaries")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := []SummaryResponse{}
	for _, z := range sums {
		response = append(response, SummaryResponse(z))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) getReadings(w http.ResponseWriter, r *http.Request) {
	if !s.historyAvailable(w) {
		return
	}
	vars := mux.Vars(r)
	window, ok := s.durationParam(w, r, "window", time.Hour)
	if !ok {
		return
	}

	readings, err := db.GetReadings(s.db, vars["zone"], vars["field"], time.Now().Add(-window))
	if err != nil {
		log.Error().Err(err).Str("zone", vars["zone"]).Msg("Failed to get readings")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := []ReadingResponse{}
	for _, rd := range readings {
		response = append(response, ReadingResponse{At: rd.At, Value: rd.Value})
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) getHeaterEvents(w http.ResponseWriter, r *http.Request) {
	if !s.historyAvailable(w) {
		return
	}
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}

	events, err := db.GetHeaterEvents(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get heater events")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := []HeaterEventResponse{}
	for _, e := range events {
		response = append(response, HeaterEventResponse(e))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) getCommands(w http.ResponseWriter, r *http.Request) {
	if !s.historyAvailable(w) {
		return
	}
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}

	cmds, err := db.GetCommands(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get commands")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := []CommandResponse{}
	for _, c := range cmds {
		response = append(response, CommandResponse(c))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) historyAvailable(w http.ResponseWriter) bool {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "History is not enabled")
		return false
	}
	return true
}

func (s *Server) durationParam(w http.ResponseWriter, r *http.Request, name string, def time.Duration) (time.Duration, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s %q", name, raw))
		return 0, false
	}
	return d, true
}

func (s *Server) limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit %q", raw))
		return 0, false
	}
	return n, true
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func flag(b bool) command.Value {
	if b {
		return command.Number(1)
	}
	return command.Number(0)
}
