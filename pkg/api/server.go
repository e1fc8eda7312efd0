// Package api provides the REST API server for markov2midi
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/james-see/markov2midi/pkg/composer"
	"github.com/james-see/markov2midi/pkg/export"
	"github.com/james-see/markov2midi/pkg/markov"
	"github.com/james-see/markov2midi/pkg/melody"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title markov2midi API
// @version 1.0
// @description API for generating melodies with variable-order Markov chains
// @host localhost:8080
// @BasePath /api/v1

const requestIDHeader = "X-Request-ID"

// Server serves the melody library and the composer over HTTP.
type Server struct {
	library  *melody.Library
	composer *composer.Composer
	writer   *export.MIDIWriter
	logger   *slog.Logger
}

// NewServer creates a server over library. A nil logger falls back to
// slog.Default().
func NewServer(library *melody.Library, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		library:  library,
		composer: composer.New(logger),
		writer:   export.NewMIDIWriter(),
		logger:   logger,
	}
}

// Router builds the gin engine with all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/melodies", s.listMelodies)
		v1.GET("/model", s.describeModel)
		v1.POST("/generate", s.handleGenerate)
		v1.POST("/generate/midi", s.handleGenerateMIDI)
		v1.POST("/import", s.handleImport)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return r
}

// SetMode puts gin in release mode for production deployments and leaves
// the current mode alone otherwise.
func SetMode(production bool) {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}
}

// StartServer starts the API server on the specified port
func StartServer(port int, library *melody.Library, logger *slog.Logger) error {
	return NewServer(library, logger).Router().Run(fmt.Sprintf(":%d", port))
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "markov2midi",
	})
}

// MelodyInfo summarizes a library melody.
type MelodyInfo struct {
	Name  string   `json:"name"`
	Title string   `json:"title"`
	Notes []string `json:"notes"`
	Tempo float64  `json:"tempo"`
}

// listMelodies godoc
// @Summary List built-in melodies
// @Tags melodies
// @Produce json
// @Success 200 {object} map[string][]MelodyInfo
// @Router /api/v1/melodies [get]
func (s *Server) listMelodies(c *gin.Context) {
	out := make([]MelodyInfo, 0)
	for _, name := range s.library.Names() {
		m, err := s.library.Get(name)
		if err != nil {
			continue
		}
		out = append(out, MelodyInfo{Name: m.Name, Title: m.Title, Notes: melody.Strings(m.Notes), Tempo: m.Tempo})
	}
	c.JSON(http.StatusOK, gin.H{"melodies": out})
}

// TransitionJSON is one successor in a model response.
type TransitionJSON struct {
	Note  string  `json:"note"`
	Count int     `json:"count"`
	Prob  float64 `json:"probability"`
}

// StateJSON is one context in a model response.
type StateJSON struct {
	Context     []string         `json:"context"`
	Transitions []TransitionJSON `json:"transitions"`
}

// describeModel godoc
// @Summary Show the transition table of a melody
// @Tags model
// @Produce json
// @Param melody query string true "Melody name"
// @Param order query int false "Markov order (default 1)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/model [get]
func (s *Server) describeModel(c *gin.Context) {
	m, err := s.library.Get(c.Query("melody"))
	if err != nil {
		s.fail(c, err)
		return
	}
	order, err := strconv.Atoi(c.DefaultQuery("order", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order must be an integer"})
		return
	}

	model, err := markov.Build(m.Notes, order)
	if err != nil {
		s.fail(c, err)
		return
	}

	states := make([]StateJSON, 0, model.Len())
	for _, ctx := range model.Contexts() {
		trs, _ := model.Transitions(ctx)
		st := StateJSON{Context: melody.Strings(ctx)}
		for _, t := range trs {
			st.Transitions = append(st.Transitions, TransitionJSON{Note: string(t.Note), Count: t.Count, Prob: t.Prob})
		}
		states = append(states, st)
	}

	c.JSON(http.StatusOK, gin.H{
		"melody": m.Name,
		"order":  model.Order(),
		"states": states,
	})
}

// GenerateRequest is the body of the generate endpoints. Either Melody names
// a library entry or Notes supplies a custom source line. Zero or empty
// generation fields select the defaults; zero is never taken literally.
type GenerateRequest struct {
	Melody    string    `json:"melody" example:"au-clair-de-la-lune"`
	Notes     []string  `json:"notes"`
	Durations []float64 `json:"durations"` // beats per note, 1 each when empty
	Tempo     float64   `json:"tempo"`     // BPM, 120 when zero

	Orders []int  `json:"orders"`                 // default [1,2,3]
	Length int    `json:"length" maximum:"10000"` // notes per melody, 0 selects 40
	Count  int    `json:"count" maximum:"100"`    // melodies per order, 0 selects 2
	Seed   uint64 `json:"seed"`
	Rhythm string `json:"rhythm" enums:"random,markov"`
	Policy string `json:"policy" enums:"fallback,stop"`
}

// VariationJSON is one generated melody.
type VariationJSON struct {
	Order     int       `json:"order"`
	Index     int       `json:"index"`
	Notes     []string  `json:"notes"`
	Durations []float64 `json:"durations"`
}

// AnalysisJSON is the result for one order.
type AnalysisJSON struct {
	Order        int                `json:"order"`
	States       int                `json:"states"`
	Variations   []VariationJSON    `json:"variations"`
	Distribution map[string]float64 `json:"distribution"`
	Divergence   float64            `json:"divergence"`
}

// GenerateResponse is returned by POST /generate.
type GenerateResponse struct {
	RequestID    string             `json:"request_id"`
	Melody       string             `json:"melody"`
	Distribution map[string]float64 `json:"distribution"`
	Analyses     []AnalysisJSON     `json:"analyses"`
}

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

func (s *Server) sourceMelody(req GenerateRequest) (melody.Melody, error) {
	if len(req.Notes) == 0 {
		if req.Melody == "" {
			return melody.Melody{}, fmt.Errorf("%w: melody or notes required", errBadRequest)
		}
		return s.library.Get(req.Melody)
	}

	m := melody.Melody{
		Name:      "custom",
		Title:     "Custom melody",
		Durations: req.Durations,
		Tempo:     req.Tempo,
	}
	if req.Melody != "" {
		m.Name = req.Melody
		m.Title = req.Melody
	}
	for _, n := range req.Notes {
		m.Notes = append(m.Notes, melody.Note(n))
	}
	if len(m.Durations) == 0 {
		m.Durations = make([]float64, len(m.Notes))
		for i := range m.Durations {
			m.Durations[i] = 1
		}
	}
	if m.Tempo <= 0 {
		m.Tempo = export.DefaultTempo
	}
	if err := m.Validate(); err != nil {
		return melody.Melody{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return m, nil
}

func (s *Server) compose(req GenerateRequest) (*composer.Result, error) {
	src, err := s.sourceMelody(req)
	if err != nil {
		return nil, err
	}
	rhythm, err := melody.ParseRhythmMode(req.Rhythm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	policy, err := markov.ParsePolicy(req.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return s.composer.Compose(composer.Request{
		Source: src,
		Orders: req.Orders,
		Length: req.Length,
		Count:  req.Count,
		Seed:   req.Seed,
		Rhythm: rhythm,
		Policy: policy,
	})
}

// handleGenerate godoc
// @Summary Generate melodies
// @Description Builds a model per order and samples variations from it.
// @Description length and count of 0 select the defaults (40 and 2); they are capped at 10000 and 100.
// @Tags generate
// @Accept json
// @Produce json
// @Param request body GenerateRequest true "Generation parameters"
// @Success 200 {object} GenerateResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/generate [post]
func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	res, err := s.compose(req)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := GenerateResponse{
		RequestID:    c.GetString("request_id"),
		Melody:       res.Source.Name,
		Distribution: plain(res.Distribution),
	}
	for _, a := range res.Analyses {
		aj := AnalysisJSON{
			Order:        a.Order,
			States:       a.States,
			Distribution: plain(a.Mean),
			Divergence:   a.Divergence,
		}
		for _, v := range a.Variations {
			aj.Variations = append(aj.Variations, VariationJSON{
				Order:     v.Order,
				Index:     v.Index,
				Notes:     melody.Strings(v.Notes),
				Durations: v.Durations,
			})
		}
		resp.Analyses = append(resp.Analyses, aj)
	}
	c.JSON(http.StatusOK, resp)
}

// handleGenerateMIDI godoc
// @Summary Generate a melody as a MIDI file
// @Description Generates with a single order and returns the first variation
// @Tags generate
// @Accept json
// @Produce audio/midi
// @Param request body GenerateRequest true "Generation parameters; only the first order is used"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/generate/midi [post]
func (s *Server) handleGenerateMIDI(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if len(req.Orders) == 0 {
		req.Orders = []int{1}
	}
	req.Orders = req.Orders[:1]
	req.Count = 1

	res, err := s.compose(req)
	if err != nil {
		s.fail(c, err)
		return
	}
	v, _ := res.Find(req.Orders[0], 1)
	data, err := s.composer.EncodeVariation(res, v)
	if err != nil {
		s.fail(c, err)
		return
	}

	name := export.FileName(composer.BaseName(res.Source), v.Order, v.Index)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, "audio/midi", data)
}

// handleImport godoc
// @Summary Import a MIDI file
// @Description Upload a monophonic MIDI file and receive its notes and durations
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/import [post]
func (s *Server) handleImport(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	if export.DetectFormatFromContent(data) != export.FormatMIDI {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s is not a MIDI file", header.Filename)})
		return
	}

	track, err := s.writer.Decode(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m := track.Melody(header.Filename)
	c.JSON(http.StatusOK, gin.H{
		"name":      m.Name,
		"title":     m.Title,
		"notes":     melody.Strings(m.Notes),
		"durations": m.Durations,
		"tempo":     m.Tempo,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, melody.ErrUnknownMelody):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, composer.ErrInvalidRequest),
		errors.Is(err, markov.ErrInsufficientData),
		errors.Is(err, markov.ErrInvalidLength),
		errors.Is(err, markov.ErrNegativeOrder),
		errors.Is(err, markov.ErrSeedLength):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", c.GetString("request_id")),
			slog.Any("error", err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func plain(d map[melody.Note]float64) map[string]float64 {
	out := make(map[string]float64, len(d))
	for n, f := range d {
		out[string(n)] = f
	}
	return out
}
