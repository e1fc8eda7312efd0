package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/james-see/markov2midi/pkg/composer"
	"github.com/james-see/markov2midi/pkg/export"
	"github.com/james-see/markov2midi/pkg/melody"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(melody.Builtin(), logger).Router()
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := setupRouter(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := doJSON(t, r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "healthy")
		assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := setupRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	r := setupRouter(t)
	w := doJSON(t, r, http.MethodOptions, "/api/v1/generate", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListMelodies(t *testing.T) {
	w := doJSON(t, setupRouter(t), http.MethodGet, "/api/v1/melodies", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Melodies []MelodyInfo `json:"melodies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Melodies, 2)
	assert.Equal(t, "au-clair-de-la-lune", body.Melodies[0].Name)
	assert.Len(t, body.Melodies[0].Notes, 44)
	assert.Equal(t, 80.0, body.Melodies[1].Tempo)
}

func TestDescribeModel(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/model?melody=au-clair-de-la-lune&order=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Order  int         `json:"order"`
		States []StateJSON `json:"states"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Order)
	assert.Len(t, body.States, 6)
	for _, st := range body.States {
		total := 0.0
		for _, tr := range st.Transitions {
			total += tr.Prob
		}
		assert.InDelta(t, 1.0, total, 1e-9)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/model?melody=nope", http.StatusNotFound},
		{"/api/v1/model?melody=marseillaise&order=x", http.StatusBadRequest},
		{"/api/v1/model?melody=marseillaise&order=48", http.StatusBadRequest},
		{"/api/v1/model?melody=marseillaise&order=-2", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := doJSON(t, r, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestGenerate(t *testing.T) {
	r := setupRouter(t)
	req := GenerateRequest{Melody: "marseillaise", Orders: []int{1, 2}, Length: 16, Count: 2, Seed: 7}

	w := doJSON(t, r, http.MethodPost, "/api/v1/generate", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "marseillaise", resp.Melody)
	assert.NotEmpty(t, resp.RequestID)
	require.Len(t, resp.Analyses, 2)
	for _, a := range resp.Analyses {
		require.Len(t, a.Variations, 2)
		for _, v := range a.Variations {
			assert.Len(t, v.Notes, 16)
			assert.Len(t, v.Durations, 16)
			assert.Equal(t, []string{"F", "F"}[:a.Order], v.Notes[:a.Order])
		}
	}

	again := doJSON(t, r, http.MethodPost, "/api/v1/generate", req)
	var resp2 GenerateResponse
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &resp2))
	assert.Equal(t, resp.Analyses, resp2.Analyses)
}

func TestGenerate_CustomNotes(t *testing.T) {
	r := setupRouter(t)
	req := GenerateRequest{
		Notes:  []string{"C", "E", "G", "C", "E", "G", "C"},
		Orders: []int{1},
		Length: 5,
		Count:  1,
	}
	w := doJSON(t, r, http.MethodPost, "/api/v1/generate", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "custom", resp.Melody)
	assert.Equal(t, []string{"C", "E", "G", "C", "E"}, resp.Analyses[0].Variations[0].Notes)
}

func TestGenerate_Errors(t *testing.T) {
	r := setupRouter(t)
	tests := []struct {
		name string
		body any
		code int
	}{
		{"empty body", nil, http.StatusBadRequest},
		{"no source", GenerateRequest{}, http.StatusBadRequest},
		{"unknown melody", GenerateRequest{Melody: "nope"}, http.StatusNotFound},
		{"bad note", GenerateRequest{Notes: []string{"C", "H"}}, http.StatusBadRequest},
		{"order too high", GenerateRequest{Notes: []string{"C", "D"}, Orders: []int{2}}, http.StatusBadRequest},
		{"length below order", GenerateRequest{Melody: "marseillaise", Orders: []int{3}, Length: 1}, http.StatusBadRequest},
		{"bad rhythm", GenerateRequest{Melody: "marseillaise", Rhythm: "swing"}, http.StatusBadRequest},
		{"bad policy", GenerateRequest{Melody: "marseillaise", Policy: "retry"}, http.StatusBadRequest},
		{"negative count", GenerateRequest{Melody: "marseillaise", Count: -1}, http.StatusBadRequest},
		{"length above limit", GenerateRequest{Melody: "marseillaise", Length: composer.MaxLength + 1}, http.StatusBadRequest},
		{"count above limit", GenerateRequest{Melody: "marseillaise", Count: composer.MaxCount + 1}, http.StatusBadRequest},
		{"huge length", map[string]any{"melody": "marseillaise", "length": int64(1) << 60}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/api/v1/generate", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "error")
		})
	}

	w := doJSON(t, r, http.MethodPost, "/api/v1/generate/midi", map[string]any{"melody": "marseillaise", "length": int64(1) << 60})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestGenerateMIDI(t *testing.T) {
	r := setupRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/generate/midi", GenerateRequest{Melody: "au-clair-de-la-lune", Orders: []int{2, 3}, Length: 12})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "audio/midi", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "au_clair_de_la_lune_order2_ex1.mid")

	track, err := export.NewMIDIWriter().Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, track.Notes, 12)
}

func TestGenerateMIDI_FilenameIsQuoted(t *testing.T) {
	r := setupRouter(t)
	req := GenerateRequest{
		Melody: "my tune; v2",
		Notes:  []string{"C", "E", "G", "C", "E"},
		Orders: []int{1},
		Length: 4,
	}
	w := doJSON(t, r, http.MethodPost, "/api/v1/generate/midi", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "my tune; v2_order1_ex1.mid", params["filename"])
}

func TestSetMode(t *testing.T) {
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })

	gin.SetMode(gin.TestMode)
	SetMode(false)
	assert.Equal(t, gin.TestMode, gin.Mode())

	SetMode(true)
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
}

func TestImport(t *testing.T) {
	r := setupRouter(t)
	data, err := export.NewMIDIWriter().Encode(export.Track{
		Notes:     []melody.Note{"C", "D", "E"},
		Durations: []float64{1, 1, 2},
		Tempo:     90,
	})
	require.NoError(t, err)

	w := upload(t, r, "tune.mid", data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Name      string    `json:"name"`
		Notes     []string  `json:"notes"`
		Durations []float64 `json:"durations"`
		Tempo     float64   `json:"tempo"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "tune", body.Name)
	assert.Equal(t, []string{"C4", "D4", "E4"}, body.Notes)
	assert.Equal(t, []float64{1, 1, 2}, body.Durations)
	assert.Equal(t, 90.0, body.Tempo)

	w = upload(t, r, "notes.txt", []byte("hello world"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/import", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func upload(t *testing.T, r http.Handler, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
