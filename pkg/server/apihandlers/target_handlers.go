package apihandlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/server/handlertools"
)

var validate = validator.New()

// RegisterTargetHandler enrolls a face under target_uuid.
//
//	POST /register  {"target_uuid", "image_base64", "origin"?}
//	201 on success, APIError otherwise.
func RegisterTargetHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request models.RegisterTargetRequest
		if err := handlertools.DecodeJSON(r, &request); err != nil {
			handlertools.RenderError(w, err, http.StatusBadRequest)
			return
		}

		if err := validate.Struct(request); err != nil {
			handlertools.RenderError(w, models.NewBadRequestError(err.Error()), http.StatusBadRequest)
			return
		}

		image, err := handlertools.DecodeBase64Image(request.ImageBase64)
		if err != nil {
			handlertools.RenderError(w, err, http.StatusBadRequest)
			return
		}

		err = appState.TargetService.Register(r.Context(), &models.Registration{
			UUID:   request.TargetUUID,
			Origin: request.Origin,
			Image:  image,
		})
		if err != nil {
			handlertools.RenderError(w, err, http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
	}
}

// SearchTargetsHandler ranks registered faces against the probe image.
//
//	POST /search  {"image_base64", "threshold"?, "limit"?}
//	200 {"results": [{"target_uuid", "similarity", "origin"}]}
func SearchTargetsHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request models.SearchTargetsRequest
		if err := handlertools.DecodeJSON(r, &request); err != nil {
			handlertools.RenderError(w, err, http.StatusBadRequest)
			return
		}

		if err := validate.Struct(request); err != nil {
			handlertools.RenderError(w, models.NewBadRequestError(err.Error()), http.StatusBadRequest)
			return
		}

		image, err := handlertools.DecodeBase64Image(request.ImageBase64)
		if err != nil {
			handlertools.RenderError(w, err, http.StatusBadRequest)
			return
		}

		probe := &models.Probe{
			Image:     image,
			Threshold: appState.Config.Search.DefaultThreshold,
			Limit:     appState.Config.Search.DefaultLimit,
		}
		if request.Threshold != nil {
			probe.Threshold = *request.Threshold
		}
		if request.Limit != nil {
			probe.Limit = *request.Limit
		}

		results, err := appState.TargetService.Search(r.Context(), probe)
		if err != nil {
			handlertools.RenderError(w, err, http.StatusInternalServerError)
			return
		}

		if err := handlertools.EncodeJSON(w, models.SearchTargetsResponse{Results: results}); err != nil {
			handlertools.RenderError(w, err, http.StatusInternalServerError)
			return
		}
	}
}

// StatsHandler reports the size of the record store.
func StatsHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := handlertools.EncodeJSON(w, appState.TargetService.Stats()); err != nil {
			handlertools.RenderError(w, err, http.StatusInternalServerError)
			return
		}
	}
}

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
