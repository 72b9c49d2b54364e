package handler

import (
	"encoding/json"
	"net/http"
)

// writeJSON — единый способ отдать тело ответа.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeDetail повторяет envelope исходного контракта {"detail": ...}:
// внешние CLI и демо-клиенты парсят именно его.
func writeDetail(w http.ResponseWriter, status int, detail interface{}) {
	writeJSON(w, status, map[string]interface{}{"detail": detail})
}
