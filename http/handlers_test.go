package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laborcond/inference"
	"laborcond/metrics"
	"laborcond/ml"
	"laborcond/registry"
)

type testEnv struct {
	handler  http.Handler
	modelDir string
	assets   Assets
	metrics  *fakeMetrics
}

type fakeMetrics struct {
	routes []string
}

func (f *fakeMetrics) ObserveRequest(method, route string, status int, d time.Duration) {
	f.routes = append(f.routes, route)
}

func (f *fakeMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("laborcond_predictions_total 1\n"))
	})
}

func writeTestModels(t *testing.T, dir string) {
	t.Helper()
	classifierSchema := ml.ClassifierSchema()
	classifierCoefficients := make([]float64, len(classifierSchema))
	classifierCoefficients[classifierSchema.Index(ml.FieldSchooling)] = 0.25
	require.NoError(t, ml.SaveModel(filepath.Join(dir, "modelo_aguinaldo.json"), &ml.LogisticRegression{
		ModelName:    "aguinaldo",
		FeatureNames: classifierSchema,
		Intercept:    -2,
		Coefficients: classifierCoefficients,
	}))

	wageSchema := ml.WageSchema()
	wageCoefficients := make([]float64, len(wageSchema))
	wageCoefficients[wageSchema.Index(ml.FieldSchooling)] = 0.05
	wageCoefficients[wageSchema.Index(ml.FieldVisual)] = -0.2
	require.NoError(t, ml.SaveModel(filepath.Join(dir, "modelo_salario_discapacidad_ver.json"), &ml.LinearRegression{
		ModelName:    "salario_discapacidad_ver",
		FeatureNames: wageSchema,
		Intercept:    3,
		Coefficients: wageCoefficients,
	}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "modelo_afore.json"), []byte("{broken"), 0o644))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	modelDir := t.TempDir()
	writeTestModels(t, modelDir)

	assetsDir := t.TempDir()
	assets := Assets{Dir: assetsDir, SupportDocument: filepath.Join(assetsDir, "Soporte.pdf")}

	reg := registry.Default()
	store := ml.NewModelStore(ml.NewDirLoader(modelDir))
	metrics := &fakeMetrics{}

	handler, err := NewHandler(DefaultServerConfig(), Dependencies{
		Registry: reg,
		Benefits: inference.NewBenefitInvoker(reg, store),
		Wages:    inference.NewWageComparator(reg, store),
		Assets:   assets,
		Metrics:  metrics,
	})
	require.NoError(t, err)
	return &testEnv{handler: handler, modelDir: modelDir, assets: assets, metrics: metrics}
}

func (e *testEnv) do(method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func profileJSON(t *testing.T, mutate func(*ProfileRequest)) []byte {
	t.Helper()
	req := DefaultProfileRequest()
	if mutate != nil {
		mutate(&req)
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, env.metrics.routes, "GET /api/health")
}

func TestOptionsMatchRegistry(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/options", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Benefits     []string `json:"benefits"`
		Disabilities []string `json:"disabilities"`
		Categories   []struct {
			Name   string   `json:"name"`
			Labels []string `json:"labels"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, registry.Default().BenefitNames(), payload.Benefits)
	assert.Equal(t, registry.Default().DisabilityLabels(), payload.Disabilities)
	assert.Len(t, payload.Categories, len(ml.Categories()))
}

func TestPredictBenefit(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/v1/benefits/Aguinaldo/predict", profileJSON(t, nil), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var prediction inference.BenefitPrediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prediction))
	assert.Equal(t, "Aguinaldo", prediction.Benefit)
	assert.Equal(t, 1, prediction.Label)
	assert.InDelta(t, 0.7310585786, prediction.Probability, 1e-9)
}

func TestPredictBenefitErrors(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name   string
		target string
		body   []byte
		status int
	}{
		{"unknown benefit", "/api/v1/benefits/Bono/predict", profileJSON(t, nil), http.StatusNotFound},
		{"missing artifact", "/api/v1/benefits/Utilidades/predict", profileJSON(t, nil), http.StatusServiceUnavailable},
		{"corrupt artifact", "/api/v1/benefits/AFORE/predict", profileJSON(t, nil), http.StatusServiceUnavailable},
		{"age out of range", "/api/v1/benefits/Aguinaldo/predict", profileJSON(t, func(p *ProfileRequest) { p.Age = 10 }), http.StatusBadRequest},
		{"unknown region", "/api/v1/benefits/Aguinaldo/predict", profileJSON(t, func(p *ProfileRequest) { p.Region = "Marte" }), http.StatusBadRequest},
		{"bad body", "/api/v1/benefits/Aguinaldo/predict", []byte("{"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tc.target, tc.body, "application/json")
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestUnknownKeysKeepMetricSeriesBounded(t *testing.T) {
	modelDir := t.TempDir()
	writeTestModels(t, modelDir)
	reg := registry.Default()
	store := ml.NewModelStore(ml.NewDirLoader(modelDir))
	m := metrics.New()

	handler, err := NewHandler(DefaultServerConfig(), Dependencies{
		Registry: reg,
		Benefits: inference.NewBenefitInvoker(reg, store, inference.WithRecorder(m)),
		Wages:    inference.NewWageComparator(reg, store, inference.WithRecorder(m)),
		Metrics:  &fakeMetrics{},
	})
	require.NoError(t, err)
	env := &testEnv{handler: handler, modelDir: modelDir}

	for i := 0; i < 50; i++ {
		rec := env.do(http.MethodPost, fmt.Sprintf("/api/v1/benefits/junk-%d/predict", i), profileJSON(t, nil), "application/json")
		require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
		rec = env.do(http.MethodPost, fmt.Sprintf("/api/v1/wages/junk-%d/compare", i), profileJSON(t, nil), "application/json")
		require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	}
	assert.Equal(t, 2, testutil.CollectAndCount(m.Predictions))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.Predictions.WithLabelValues(inference.KindBenefit, inference.UnknownKey, "error")))

	rec := env.do(http.MethodPost, "/api/v1/benefits/Aguinaldo/predict", profileJSON(t, nil), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, testutil.CollectAndCount(m.Predictions))
}

func TestValidationErrorsNameFields(t *testing.T) {
	env := newTestEnv(t)
	body := profileJSON(t, func(p *ProfileRequest) {
		p.Schooling = 31
		p.Locality = "Luna"
	})
	rec := env.do(http.MethodPost, "/api/v1/benefits/Aguinaldo/predict", body, "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var payload errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload.Fields, "escolaridad")
	assert.Contains(t, payload.Fields, "localidad")
}

func TestValidationErrorMessageIsOrdered(t *testing.T) {
	req := DefaultProfileRequest()
	req.Schooling = 31
	req.Age = 10
	want := "invalid request: edad: debe ser al menos 18; escolaridad: debe ser como máximo 30"
	for i := 0; i < 20; i++ {
		err := req.Validate()
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, want, err.Error())
	}

	err := &ValidationError{Fields: map[string]string{"region": "b", "edad": "a", "localidad": "c"}}
	assert.Equal(t, "invalid request: edad: a; localidad: c; region: b", err.Error())
}

func TestLabelsAreAccentInsensitive(t *testing.T) {
	env := newTestEnv(t)
	body := profileJSON(t, func(p *ProfileRequest) {
		p.Region = "occidente/bajio"
		p.Locality = "100,000 O MAS HABITANTES"
	})
	rec := env.do(http.MethodPost, "/api/v1/benefits/Aguinaldo/predict", body, "application/json")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCompareWages(t *testing.T) {
	env := newTestEnv(t)
	for _, target := range []string{
		"/api/v1/wages/discapacidad_ver/compare",
		"/api/v1/wages/" + url.PathEscape("Discapacidad Visual") + "/compare",
	} {
		rec := env.do(http.MethodPost, target, profileJSON(t, nil), "application/json")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var comparison inference.WageComparison
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &comparison))
		assert.Equal(t, ml.FieldVisual, comparison.Disability)
		assert.InDelta(t, 29.964100047, comparison.WithDisability, 1e-6)
		assert.InDelta(t, 36.598234444, comparison.WithoutDisability, 1e-6)
		assert.Greater(t, comparison.Gap, 0.0)
	}

	rec := env.do(http.MethodPost, "/api/v1/wages/discapacidad_oir/compare", profileJSON(t, nil), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = env.do(http.MethodPost, "/api/v1/wages/sur/compare", profileJSON(t, nil), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func formBody(values map[string]string) []byte {
	form := url.Values{}
	defaults := DefaultProfileRequest()
	form.Set("edad", "30")
	form.Set("escolaridad", "12")
	form.Set("sexo", defaults.Gender)
	form.Set("afrodescendiente", defaults.Afrodescendant)
	form.Set("lengua_indigena", defaults.IndigenousLanguage)
	form.Set("discapacidad", defaults.AnyDisability)
	form.Set("region", defaults.Region)
	form.Set("sector", defaults.Sector)
	form.Set("localidad", "100,000 o más habitantes")
	for k, v := range values {
		form.Set(k, v)
	}
	return []byte(form.Encode())
}

const formContentType = "application/x-www-form-urlencoded"

func TestBenefitPage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/prestaciones", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, name := range registry.Default().BenefitNames() {
		assert.Contains(t, rec.Body.String(), name)
	}
	assert.Contains(t, rec.Body.String(), `value="30"`)

	rec = env.do(http.MethodPost, "/prestaciones", formBody(map[string]string{"prestacion": "Aguinaldo"}), formContentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Sí tienes la prestación")
	assert.Contains(t, rec.Body.String(), "Probabilidad: 0.73")
}

func TestBenefitPageShowsLoadFailure(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/prestaciones", formBody(map[string]string{"prestacion": "AFORE"}), formContentType)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "No se pudo cargar el modelo")
}

func TestBenefitPageValidation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/prestaciones", formBody(map[string]string{"prestacion": "Aguinaldo", "edad": "abc"}), formContentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/prestaciones", formBody(map[string]string{"prestacion": "Aguinaldo", "edad": "120"}), formContentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "debe ser como máximo 99")
}

func TestWagePage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/salarios", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, label := range registry.Default().DisabilityLabels() {
		assert.Contains(t, rec.Body.String(), label)
	}

	rec = env.do(http.MethodPost, "/salarios", formBody(map[string]string{"tipo_discapacidad": "Discapacidad Visual"}), formContentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, "Salario con discapacidad")
	assert.Contains(t, body, "$29.96 por hora")
	assert.Contains(t, body, "$36.60 por hora")
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "Comparación de Salarios por Discapacidad")
	assert.Contains(t, body, "Salario por hora (MXN)")
}

func TestGuideAndSupportDocument(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "El archivo no se encontró en la ruta especificada")

	rec = env.do(http.MethodGet, "/soporte", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Verifica la ubicación")

	require.NoError(t, os.WriteFile(env.assets.SupportDocument, []byte("%PDF-1.4\n"), 0o644))

	rec = env.do(http.MethodGet, "/", nil, "")
	assert.Contains(t, rec.Body.String(), "Descargar PDF")

	rec = env.do(http.MethodGet, "/soporte", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Header().Get("Content-Disposition"), "Soporte.pdf"))
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.assets.Dir, "autor.txt"), []byte("hola"), 0o644))

	rec := env.do(http.MethodGet, "/static/autor.txt", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hola", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "laborcond_predictions_total")
}
