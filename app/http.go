package app

import (
	"encoding/json"
	"net/http"
)

func (app *App) JsonResponse(w http.ResponseWriter, data interface{}) error {
	return app.JsonResponseWithStatus(w, data, http.StatusOK)
}

func (app *App) JsonCreated(w http.ResponseWriter, data interface{}) error {
	return app.JsonResponseWithStatus(w, data, http.StatusCreated)
}

func (app *App) JsonResponseWithStatus(w http.ResponseWriter, data interface{}, status int) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		app.Logger.WithField("error", err).Error("Error encoding json response")
		return err
	}

	return nil
}
