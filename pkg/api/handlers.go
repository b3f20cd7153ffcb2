package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dronemed/pkg/drone"
	"dronemed/pkg/fleet"
	"dronemed/pkg/medication"
)

const (
	codeInvalidRequest    = "INVALID_REQUEST"
	codeInvalidDrone      = "INVALID_DRONE"
	codeInvalidMedication = "INVALID_MEDICATION"
	codeInternal          = "INTERNAL_ERROR"
	codeUnavailable       = "UNAVAILABLE"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type batteryResponse struct {
	SerialNumber    string `json:"serialNumber"`
	BatteryCapacity int    `json:"batteryCapacity"`
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func (s *HTTPServer) internalError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	s.logger.Error(msg, append(fields, zap.Error(err))...)
	s.writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
}

func (s *HTTPServer) registerDrone(w http.ResponseWriter, r *http.Request) {
	var req fleet.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("could not decode drone json object", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, codeInvalidRequest, "malformed drone json")
		return
	}

	d, err := s.drones.RegisterDrone(r.Context(), req)
	if errors.Is(err, fleet.ErrInvalidDrone) {
		s.writeError(w, http.StatusBadRequest, codeInvalidDrone, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "Failed to register drone", err, zap.String("serial_number", req.SerialNumber))
		return
	}

	s.writeJSON(w, http.StatusCreated, d)
}

func (s *HTTPServer) listDrones(list func(context.Context) ([]*drone.Drone, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drones, err := list(r.Context())
		if err != nil {
			s.internalError(w, "Failed to list drones", err)
			return
		}
		s.writeJSON(w, http.StatusOK, drones)
	}
}

// listAllDrones narrows the listing to one state when ?state= is given.
func (s *HTTPServer) listAllDrones(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("state")
	if raw == "" {
		s.listDrones(s.drones.GetAllDrones)(w, r)
		return
	}

	state, err := drone.ParseState(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	s.listDrones(func(ctx context.Context) ([]*drone.Drone, error) {
		return s.drones.GetDronesByState(ctx, state)
	})(w, r)
}

func (s *HTTPServer) getDrone(w http.ResponseWriter, r *http.Request) {
	serialNumber := mux.Vars(r)["serialNumber"]

	d, err := s.drones.GetDroneByID(r.Context(), serialNumber)
	if errors.Is(err, fleet.ErrDroneNotFound) {
		s.writeError(w, http.StatusNotFound, string(fleet.CodeDroneNotFound), err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "Failed to get drone", err, zap.String("serial_number", serialNumber))
		return
	}

	s.writeJSON(w, http.StatusOK, d)
}

func (s *HTTPServer) loadDrone(w http.ResponseWriter, r *http.Request) {
	serialNumber := mux.Vars(r)["serialNumber"]

	var med medication.Medication
	if err := json.NewDecoder(r.Body).Decode(&med); err != nil {
		s.logger.Warn("could not decode medication json object", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, codeInvalidRequest, "malformed medication json")
		return
	}

	res, err := s.drones.LoadDrone(r.Context(), serialNumber, med)
	switch {
	case errors.Is(err, medication.ErrInvalidMedication):
		s.writeError(w, http.StatusBadRequest, codeInvalidMedication, err.Error())
		return
	case res.Code == fleet.CodeMedicationNotFound:
		s.logger.Error("Drone references a missing medication",
			zap.String("serial_number", serialNumber), zap.Error(err))
		s.writeJSON(w, http.StatusConflict, res)
		return
	case err != nil:
		s.internalError(w, "Failed to load drone", err, zap.String("serial_number", serialNumber))
		return
	}

	s.writeJSON(w, loadStatus(res.Code), res)
}

func loadStatus(code fleet.Code) int {
	switch code {
	case fleet.CodeSuccess:
		return http.StatusAccepted
	case fleet.CodeDroneNotFound:
		return http.StatusNotFound
	case fleet.CodeMedicationNotFound:
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func (s *HTTPServer) getLoadedMeds(w http.ResponseWriter, r *http.Request) {
	serialNumber := mux.Vars(r)["serialNumber"]

	meds, err := s.drones.GetLoadedMeds(r.Context(), serialNumber)
	if err != nil {
		s.internalError(w, "Failed to get loaded medications", err, zap.String("serial_number", serialNumber))
		return
	}

	s.writeJSON(w, http.StatusOK, meds)
}

func (s *HTTPServer) getBatteryLevel(w http.ResponseWriter, r *http.Request) {
	serialNumber := mux.Vars(r)["serialNumber"]

	level, err := s.drones.GetBatteryLevel(r.Context(), serialNumber)
	if err != nil {
		s.internalError(w, "Failed to get battery level", err, zap.String("serial_number", serialNumber))
		return
	}

	s.writeJSON(w, http.StatusOK, batteryResponse{SerialNumber: serialNumber, BatteryCapacity: level})
}

// transition answers with an empty body; unknown drones are not an error.
func (s *HTTPServer) transition(op func(context.Context, string) error, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serialNumber := mux.Vars(r)["serialNumber"]

		if err := op(r.Context(), serialNumber); err != nil {
			s.internalError(w, "Failed to change drone state", err, zap.String("serial_number", serialNumber))
			return
		}

		w.WriteHeader(status)
	}
}

func (s *HTTPServer) listMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := s.medications.GetAllMedications(r.Context())
	if err != nil {
		s.internalError(w, "Failed to list medications", err)
		return
	}
	s.writeJSON(w, http.StatusOK, meds)
}

func (s *HTTPServer) getMedication(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	med, err := s.medications.GetMedication(r.Context(), id)
	if errors.Is(err, medication.ErrMedicationNotFound) {
		s.writeError(w, http.StatusNotFound, string(fleet.CodeMedicationNotFound), err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "Failed to get medication", err, zap.String("id", id))
		return
	}

	s.writeJSON(w, http.StatusOK, med)
}
