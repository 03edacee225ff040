package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter 注册路由，并套上访问日志、panic 恢复和 CORS 中间件
func NewRouter(h *CollarHandler, hub *Hub, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/link", h.LinkStatus).Methods(http.MethodGet)
	api.HandleFunc("/metrics", h.Metrics).Methods(http.MethodGet)

	// activity
	api.HandleFunc("/activity/today", h.Today).Methods(http.MethodGet)
	api.HandleFunc("/activity/days/{day}", h.Day).Methods(http.MethodGet)

	// calibration
	api.HandleFunc("/calibration", h.GetCalibration).Methods(http.MethodGet)
	api.HandleFunc("/calibration", h.PutCalibration).Methods(http.MethodPut)
	api.HandleFunc("/calibration", h.DeleteCalibration).Methods(http.MethodDelete)
	api.HandleFunc("/calibration/legacy", h.PutLegacyCalibration).Methods(http.MethodPut)
	api.HandleFunc("/calibration/recordings", h.StartRecording).Methods(http.MethodPost)
	api.HandleFunc("/calibration/recordings/stop", h.StopRecording).Methods(http.MethodPost)
	api.HandleFunc("/sensitivity", h.PutSensitivity).Methods(http.MethodPut)

	if hub != nil {
		r.HandleFunc("/ws", hub.ServeWS).Methods(http.MethodGet)
	}

	stdLog := zap.NewStdLog(logger)
	var handler http.Handler = r
	handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(handler)
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(stdLog),
		handlers.PrintRecoveryStack(true),
	)(handler)
	handler = handlers.LoggingHandler(stdLog.Writer(), handler)
	return handler
}
