package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/traitlab/internal/engine"
	"github.com/knowledge-engine/traitlab/internal/storage"
	"github.com/knowledge-engine/traitlab/internal/tfidf"
)

type Server struct {
	Engine *engine.Engine
	Logger *logrus.Entry
	Router *http.ServeMux
}

func NewServer(eng *engine.Engine, logger *logrus.Entry) *Server {
	s := &Server{
		Engine: eng,
		Logger: logger.WithField("component", "api"),
		Router: http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.HandleFunc("/api/v1/vectorize", s.handleVectorize)
	s.Router.HandleFunc("/api/v1/results", s.handleResults)
	s.Router.HandleFunc("/api/v1/status", s.handleStatus)
}

func (s *Server) Start(addr string) error {
	s.Logger.Infof("Starting API Server on %s", addr)
	return http.ListenAndServe(addr, s.Router)
}

// Requests and responses

type ErrorResponse struct {
	Error string `json:"error"`
}

type VectorizeRequest struct {
	Documents []string `json:"documents"`
	// Mode is "unigram" or "bigram"; empty uses the engine's mode
	Mode      string `json:"mode"`
	Features  int    `json:"features"`
	Normalize bool   `json:"normalize"`
}

type VectorizeResponse struct {
	Mode    string      `json:"mode"`
	Vectors [][]float64 `json:"vectors"`
}

type StatusResponse struct {
	Running   bool   `json:"running"`
	RunID     string `json:"run_id,omitempty"`
	Planned   int    `json:"planned"`
	Completed int    `json:"completed"`
	LastError string `json:"last_error,omitempty"`
	Uptime    string `json:"uptime"`
}

// ResultView is a stored result with NaN metrics rendered as null
type ResultView struct {
	RunID           string   `json:"run_id"`
	Trait           string   `json:"trait"`
	Mode            string   `json:"mode"`
	Features        int      `json:"features"`
	Complexity      float64  `json:"complexity"`
	Loss            string   `json:"loss"`
	Seed            int64    `json:"seed"`
	TrainSize       int      `json:"train_size"`
	TestSize        int      `json:"test_size"`
	OverallAccuracy *float64 `json:"overall_accuracy"`
	AverageAccuracy *float64 `json:"average_accuracy"`
	MicroPrecision  *float64 `json:"micro_precision"`
	MacroPrecision  *float64 `json:"macro_precision"`
	MicroRecall     *float64 `json:"micro_recall"`
	MacroRecall     *float64 `json:"macro_recall"`
	MicroF1         *float64 `json:"micro_f1"`
	MacroF1         *float64 `json:"macro_f1"`
	CrossEntropy    *float64 `json:"cross_entropy"`
	ZeroOne         *float64 `json:"zero_one"`

	ClassPrecision [3]*float64    `json:"class_precision"`
	ClassRecall    [3]*float64    `json:"class_recall"`
	Confusion      [3][3]int      `json:"confusion"`
	Percentages    [3][3]*float64 `json:"percentages"`
	ModelPath      string         `json:"model_path,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type ResultsResponse struct {
	RunID   string       `json:"run_id,omitempty"`
	Results []ResultView `json:"results"`
}

// Handlers

func (s *Server) handleVectorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req VectorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return
	}

	if len(req.Documents) == 0 {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "documents are required"})
		return
	}

	mode := s.Engine.Mode()
	if req.Mode != "" {
		m, err := tfidf.ParseMode(req.Mode)
		if err != nil {
			jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		mode = m
	}

	features := req.Features
	if features == 0 {
		features = s.Engine.Config.Pipeline.FeaturesAmount
	}

	vectors, err := s.Engine.Vectorize(req.Documents, mode, features, req.Normalize)
	if err != nil {
		s.Logger.WithError(err).Error("Vectorize failed")
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, VectorizeResponse{
		Mode:    mode.String(),
		Vectors: vectors,
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := r.URL.Query().Get("run")
	results, err := s.Engine.Results(r.Context(), runID)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNoStore) {
			code = http.StatusServiceUnavailable
		}
		jsonResponse(w, code, ErrorResponse{Error: err.Error()})
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		if err := storage.WriteCSV(w, results); err != nil {
			s.Logger.WithError(err).Error("CSV export failed")
		}
		return
	}

	response := ResultsResponse{
		RunID:   runID,
		Results: make([]ResultView, len(results)),
	}
	for i, res := range results {
		response.Results[i] = newResultView(res)
	}
	jsonResponse(w, http.StatusOK, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.Engine.Stats()
	running := s.Engine.IsRunning()

	resp := StatusResponse{
		Running:   running,
		RunID:     stats.RunID,
		Planned:   stats.Planned,
		Completed: stats.Completed,
		LastError: stats.LastError,
		Uptime:    "0s",
	}
	if running {
		resp.Uptime = time.Since(stats.StartTime).Round(time.Second).String()
	}

	jsonResponse(w, http.StatusOK, resp)
}

func newResultView(r storage.Result) ResultView {
	view := ResultView{
		RunID:           r.RunID,
		Trait:           r.Trait,
		Mode:            r.Mode,
		Features:        r.Features,
		Complexity:      r.Complexity,
		Loss:            r.Loss,
		Seed:            r.Seed,
		TrainSize:       r.TrainSize,
		TestSize:        r.TestSize,
		OverallAccuracy: finite(r.OverallAccuracy),
		AverageAccuracy: finite(r.AverageAccuracy),
		MicroPrecision:  finite(r.MicroPrecision),
		MacroPrecision:  finite(r.MacroPrecision),
		MicroRecall:     finite(r.MicroRecall),
		MacroRecall:     finite(r.MacroRecall),
		MicroF1:         finite(r.MicroF1),
		MacroF1:         finite(r.MacroF1),
		CrossEntropy:    finite(r.CrossEntropy),
		ZeroOne:         finite(r.ZeroOne),
		Confusion:       r.Confusion,
		ModelPath:       r.ModelPath,
		CreatedAt:       r.CreatedAt,
	}
	for i := range view.ClassPrecision {
		view.ClassPrecision[i] = finite(r.ClassPrecision[i])
		view.ClassRecall[i] = finite(r.ClassRecall[i])
		for j := range view.Percentages[i] {
			view.Percentages[i][j] = finite(r.Percentages[i][j])
		}
	}
	return view
}

// finite maps NaN and infinities, which encoding/json rejects, to null
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
