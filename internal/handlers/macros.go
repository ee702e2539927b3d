package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"kiama-backend/internal/apperrors"
)

var validate = validator.New()

func respondJson(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		sugar.Error(err)
	}
}

// respondError maps the error taxonomy onto http statuses. Internal errors
// are logged and never leak their message.
func respondError(w http.ResponseWriter, err error) {
	status := apperrors.HttpStatus(err)
	if status == http.StatusInternalServerError {
		sugar.Error(err)
		http.Error(w, "", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func urlParamID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.InvalidArg("invalid " + name)
	}
	return id, nil
}

func decodeBody(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return apperrors.InvalidArg("malformed request body")
	}
	if err := validate.Struct(target); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid request body", err)
	}
	return nil
}
