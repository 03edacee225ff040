package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wisefido-collar/internal/accumulator"
	"wisefido-collar/internal/calibration"
	"wisefido-collar/internal/consumer"
	"wisefido-collar/internal/inference"
	"wisefido-collar/internal/link"
	"wisefido-collar/internal/models"
	"wisefido-collar/internal/repository"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// LinkStatusProvider 链路状态（link.Machine 实现）
type LinkStatusProvider interface {
	Status() link.Status
}

// ActivityProvider 当日活动（consumer.Tracker 实现）
type ActivityProvider interface {
	Today() models.DailySummary
	Battery() (uint8, bool)
	Metrics() *consumer.Metrics
}

// DayStore 历史每日汇总（repository.DailyActivityRepository 实现）
type DayStore interface {
	Get(ctx context.Context, deviceID, day string) (*models.DailySummary, error)
}

// CalibrationAPI 校准工作流（service.CalibrationService 实现）
type CalibrationAPI interface {
	Profiles() calibration.Profiles
	ApplyFull(ctx context.Context, rest, walk, run models.Features) (calibration.Profiles, error)
	ApplyLegacy(ctx context.Context, restMean, walkMean, runMean float64) (calibration.Profiles, error)
	Reset(ctx context.Context) error
	StartRecording(activity models.Label) error
	StopRecording(ctx context.Context) (models.Label, models.Features, error)
	Recording() (inference.Recording, bool)
	SetSensitivity(sf float64) error
	Sensitivity() float64
}

// CollarHandler 项圈本地 API
type CollarHandler struct {
	deviceID    string
	link        LinkStatusProvider
	activity    ActivityProvider
	days        DayStore // 可以为 nil
	calibration CalibrationAPI
	logger      *zap.Logger
}

// NewCollarHandler 创建处理器
func NewCollarHandler(deviceID string, linkStatus LinkStatusProvider, activity ActivityProvider, days DayStore, cal CalibrationAPI, logger *zap.Logger) *CollarHandler {
	return &CollarHandler{
		deviceID:    deviceID,
		link:        linkStatus,
		activity:    activity,
		days:        days,
		calibration: cal,
		logger:      logger,
	}
}

func (h *CollarHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "device_id": h.deviceID})
}

func (h *CollarHandler) LinkStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.link.Status()))
}

// todayResponse 当日汇总 + 最近电量
type todayResponse struct {
	models.DailySummary
	Battery *uint8 `json:"battery,omitempty"`
}

func (h *CollarHandler) Today(w http.ResponseWriter, r *http.Request) {
	resp := todayResponse{DailySummary: h.activity.Today()}
	if b, ok := h.activity.Battery(); ok {
		resp.Battery = &b
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Day 查询某日汇总；当日从内存读取
func (h *CollarHandler) Day(w http.ResponseWriter, r *http.Request) {
	day := mux.Vars(r)["day"]
	if _, err := time.Parse(accumulator.DayKeyLayout, day); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("day must be YYYY-MM-DD"))
		return
	}

	today := h.activity.Today()
	if day == today.Day {
		writeJSON(w, http.StatusOK, Ok(today))
		return
	}
	if h.days == nil {
		writeJSON(w, http.StatusNotFound, Fail("history is not available"))
		return
	}

	summary, err := h.days.Get(r.Context(), h.deviceID, day)
	if err != nil {
		if errors.Is(err, repository.ErrDayNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("no activity recorded for "+day))
			return
		}
		h.logger.Error("Failed to load daily activity", zap.String("day", day), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load daily activity"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}

func (h *CollarHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.activity.Metrics().GetSnapshot()))
}

// calibrationView 校准状态
type calibrationView struct {
	Profiles    calibration.Profiles `json:"profiles"`
	Sensitivity float64              `json:"sensitivity"`
	Recording   *inference.Recording `json:"recording,omitempty"`
}

func (h *CollarHandler) calibrationView() calibrationView {
	v := calibrationView{
		Profiles:    h.calibration.Profiles(),
		Sensitivity: h.calibration.Sensitivity(),
	}
	if rec, ok := h.calibration.Recording(); ok {
		v.Recording = &rec
	}
	return v
}

func (h *CollarHandler) GetCalibration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.calibrationView()))
}

type fullCalibrationRequest struct {
	Rest *models.Features `json:"rest"`
	Walk *models.Features `json:"walk"`
	Run  *models.Features `json:"run"`
}

func (h *CollarHandler) PutCalibration(w http.ResponseWriter, r *http.Request) {
	var req fullCalibrationRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	if req.Rest == nil || req.Walk == nil || req.Run == nil {
		writeJSON(w, http.StatusBadRequest, Fail("rest, walk and run profiles are required"))
		return
	}

	if _, err := h.calibration.ApplyFull(r.Context(), *req.Rest, *req.Walk, *req.Run); err != nil {
		h.logger.Error("Failed to persist calibration", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("calibration applied but not persisted"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.calibrationView()))
}

type legacyCalibrationRequest struct {
	RestMean *float64 `json:"rest_mean"`
	WalkMean *float64 `json:"walk_mean"`
	RunMean  *float64 `json:"run_mean"`
}

func (h *CollarHandler) PutLegacyCalibration(w http.ResponseWriter, r *http.Request) {
	var req legacyCalibrationRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	if req.RestMean == nil || req.WalkMean == nil || req.RunMean == nil {
		writeJSON(w, http.StatusBadRequest, Fail("rest_mean, walk_mean and run_mean are required"))
		return
	}

	if _, err := h.calibration.ApplyLegacy(r.Context(), *req.RestMean, *req.WalkMean, *req.RunMean); err != nil {
		h.logger.Error("Failed to persist calibration", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("calibration applied but not persisted"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.calibrationView()))
}

func (h *CollarHandler) DeleteCalibration(w http.ResponseWriter, r *http.Request) {
	if err := h.calibration.Reset(r.Context()); err != nil {
		h.logger.Error("Failed to delete calibration", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to delete calibration"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.calibrationView()))
}

type startRecordingRequest struct {
	Activity *models.Label `json:"activity"`
}

func (h *CollarHandler) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req startRecordingRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	if req.Activity == nil {
		writeJSON(w, http.StatusBadRequest, Fail("activity is required"))
		return
	}

	if err := h.calibration.StartRecording(*req.Activity); err != nil {
		switch {
		case errors.Is(err, calibration.ErrInvalidActivity):
			writeJSON(w, http.StatusBadRequest, Fail("only rest, walk and run can be recorded"))
		case errors.Is(err, inference.ErrAlreadyRecording):
			writeJSON(w, http.StatusConflict, Fail("a recording is already in progress"))
		default:
			writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusAccepted, Ok(h.calibrationView()))
}

type recordingResult struct {
	Activity models.Label         `json:"activity"`
	Features models.Features      `json:"features"`
	Profiles calibration.Profiles `json:"profiles"`
}

func (h *CollarHandler) StopRecording(w http.ResponseWriter, r *http.Request) {
	activity, f, err := h.calibration.StopRecording(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, inference.ErrNotRecording):
			writeJSON(w, http.StatusConflict, Fail("no recording in progress"))
		case errors.Is(err, inference.ErrNoSamples):
			writeJSON(w, http.StatusUnprocessableEntity, Fail("no samples were recorded"))
		default:
			h.logger.Error("Failed to store recorded calibration", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("failed to store recorded calibration"))
		}
		return
	}
	writeJSON(w, http.StatusOK, Ok(recordingResult{
		Activity: activity,
		Features: f,
		Profiles: h.calibration.Profiles(),
	}))
}

type sensitivityRequest struct {
	Sensitivity float64 `json:"sensitivity"`
}

func (h *CollarHandler) PutSensitivity(w http.ResponseWriter, r *http.Request) {
	var req sensitivityRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	if err := h.calibration.SetSensitivity(req.Sensitivity); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]float64{"sensitivity": h.calibration.Sensitivity()}))
}
