package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
	"github.com/tamangRajkumar/backend-final-year-project/internal/service"
)

const maxBodyBytes = 1 << 20

// envelope: общий формат ответов API.
type envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Pagination any    `json:"pagination,omitempty"`
}

// errInternal: значение поля error для 500; причина остаётся в логах.
const errInternal = "Unexpected server error"

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeOK(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: msg, Data: data})
}

// writePage: список в data, пагинация на верхнем уровне конверта.
func writePage(w http.ResponseWriter, items any, p model.Pagination, totalKey string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: items, Pagination: pagination(p, totalKey)})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeServiceError сопоставляет ошибку сервиса со статусом. Неизвестные ошибки: 500 без деталей.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var se *service.Error
	if errors.As(err, &se) {
		switch {
		case errors.Is(se, service.ErrInvalid):
			writeError(w, http.StatusBadRequest, se.Msg)
		case errors.Is(se, service.ErrNotFound):
			writeError(w, http.StatusNotFound, se.Msg)
		case errors.Is(se, service.ErrForbidden):
			writeError(w, http.StatusForbidden, se.Msg)
		default:
			writeError(w, http.StatusBadRequest, se.Msg)
		}
		return
	}
	logger.Errorf("%s: %v", op, err)
	writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Internal server error", Error: errInternal})
}

// decodeBody читает JSON-тело не больше maxBodyBytes.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// pagination добавляет общее число под именем totalKey (totalChats / totalMessages).
func pagination(p model.Pagination, totalKey string) map[string]any {
	return map[string]any{
		"currentPage": p.CurrentPage,
		"totalPages":  p.TotalPages,
		totalKey:      p.Total,
		"hasNextPage": p.HasNextPage,
		"hasPrevPage": p.HasPrevPage,
		"limit":       p.Limit,
	}
}
