// Package httpapi exposes the observation analytics service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/vench/obsanalytics"
)

// Service is the analytics operation served by the handler.
type Service interface {
	GetObservationCountByGroup(
		ctx context.Context, req *obsanalytics.ObservationCountRequest,
	) ([]*obsanalytics.ObservationAnalytics, error)
}

// Pinger reports whether the data store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service  Service
	pinger   Pinger
	columns  []*obsanalytics.GroupColumn
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(
	service Service, pinger Pinger, columns []*obsanalytics.GroupColumn, logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  service,
		pinger:   pinger,
		columns:  columns,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type observationCountQuery struct {
	SurveyIDs                         []int64  `validate:"required,min=1,dive,gt=0"`
	GroupByColumns                    []string `validate:"dive,max=100"`
	GroupByQuantitativeMeasurementIDs []string `validate:"dive,max=100"`
	GroupByQualitativeMeasurementIDs  []string `validate:"dive,max=100"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type columnResponse struct {
	Name string `json:"name"`
}

// ObservationCountByGroup serves
// GET /api/analytics/observations?surveyIds=1&groupByColumns=itis_tsn&...
func (h *Handler) ObservationCountByGroup(w http.ResponseWriter, r *http.Request) {
	query, err := parseObservationCountQuery(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.validate.Struct(query); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.GetObservationCountByGroup(r.Context(), &obsanalytics.ObservationCountRequest{
		SurveyIDs:                         query.SurveyIDs,
		GroupByColumns:                    query.GroupByColumns,
		GroupByQuantitativeMeasurementIDs: query.GroupByQuantitativeMeasurementIDs,
		GroupByQualitativeMeasurementIDs:  query.GroupByQualitativeMeasurementIDs,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respond(w, http.StatusOK, result)
}

// Columns lists the columns observations can be grouped by.
func (h *Handler) Columns(w http.ResponseWriter, _ *http.Request) {
	columns := make([]*columnResponse, 0, len(h.columns))
	for _, c := range h.columns {
		columns = append(columns, &columnResponse{Name: c.Name})
	}
	h.respond(w, http.StatusOK, columns)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		h.respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseObservationCountQuery(r *http.Request) (*observationCountQuery, error) {
	values := r.URL.Query()

	query := &observationCountQuery{
		SurveyIDs:                         make([]int64, 0),
		GroupByColumns:                    splitValues(values["groupByColumns"]),
		GroupByQuantitativeMeasurementIDs: splitValues(values["groupByQuantitativeMeasurementIds"]),
		GroupByQualitativeMeasurementIDs:  splitValues(values["groupByQualitativeMeasurementIds"]),
	}

	for _, v := range splitValues(values["surveyIds"]) {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.New("surveyIds must be integers")
		}
		query.SurveyIDs = append(query.SurveyIDs, id)
	}

	return query, nil
}

// splitValues accepts both repeated parameters and comma separated lists.
// Blank pieces are dropped.
func splitValues(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		for _, piece := range strings.Split(v, ",") {
			if piece = strings.TrimSpace(piece); piece != "" {
				result = append(result, piece)
			}
		}
	}
	return result
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, obsanalytics.ErrInvalidInput):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, obsanalytics.ErrUpstreamService):
		h.logger.Error("measurement definition lookup failed", zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "measurement definition service unavailable")
	default:
		h.logger.Error("observation count failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respond(w, status, &errorResponse{Error: message})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}
