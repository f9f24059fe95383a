package farmwatch

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func GetUintParameter(r *http.Request, id string) (uint64, error) {
	parameter := mux.Vars(r)[id]

	return strconv.ParseUint(parameter, 10, 64)
}

func GetIntQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return value
}
