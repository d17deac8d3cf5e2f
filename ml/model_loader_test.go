package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClassifierArtifact() *LogisticRegression {
	schema := ClassifierSchema()
	coefficients := make([]float64, len(schema))
	coefficients[schema.Index(FieldSchooling)] = 0.2
	coefficients[schema.Index(FieldAnyDisability)] = -0.8
	return &LogisticRegression{
		ModelName:    "aguinaldo",
		FeatureNames: schema,
		Intercept:    -2,
		Coefficients: coefficients,
	}
}

func testWageArtifact() *LinearRegression {
	schema := WageSchema()
	coefficients := make([]float64, len(schema))
	coefficients[schema.Index(FieldSchooling)] = 0.05
	coefficients[schema.Index(FieldVisual)] = -0.1
	return &LinearRegression{
		ModelName:    "salario_discapacidad_ver",
		FeatureNames: schema,
		Intercept:    3,
		Coefficients: coefficients,
	}
}

func TestSaveAndLoadModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modelo_aguinaldo.json")
	require.NoError(t, SaveModel(path, testClassifierArtifact()))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, KindLogisticRegression, loaded.Kind())
	assert.Equal(t, "aguinaldo", loaded.Name())
	assert.Equal(t, ClassifierSchema(), loaded.Features())

	classifier, err := AsClassifier(loaded)
	require.NoError(t, err)
	v, err := ClassifierVector(defaultProfile())
	require.NoError(t, err)
	proba, err := classifier.PredictProba(v)
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(-2+0.2*12), proba, 1e-12)
}

func TestLoadModelMissingFile(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestLoadModelCorrupt(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"garbage.json":  "not json",
		"unknown.json":  `{"kind":"random_forest"}`,
		"mismatch.json": `{"kind":"linear_regression","name":"x","features":["edad"],"coefficients":[1,2]}`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := LoadModel(path)
		assert.ErrorIs(t, err, ErrArtifactCorrupt, name)
	}
}

func TestCapabilityMismatch(t *testing.T) {
	_, err := AsClassifier(testWageArtifact())
	assert.ErrorIs(t, err, ErrWrongCapability)
	_, err = AsRegressor(testClassifierArtifact())
	assert.ErrorIs(t, err, ErrWrongCapability)
}

func TestPredictMissingFeatureFailsLoudly(t *testing.T) {
	regressor, err := AsRegressor(testWageArtifact())
	require.NoError(t, err)
	baseline, err := WageBaseline(defaultProfile())
	require.NoError(t, err)

	_, err = regressor.Predict(baseline)
	assert.ErrorIs(t, err, ErrMissingFeature)
}

func TestDirLoaderRejectsPaths(t *testing.T) {
	loader := NewDirLoader(t.TempDir())
	for _, id := range []string{"", "..", "../modelo.json", "sub/modelo.json"} {
		_, err := loader.Load(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidArtifactID, id)
	}
}

func TestModelStoreResolvesCapabilities(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveModel(filepath.Join(dir, "clf.json"), testClassifierArtifact()))
	require.NoError(t, SaveModel(filepath.Join(dir, "reg.json"), testWageArtifact()))
	store := NewModelStore(NewDirLoader(dir))
	ctx := context.Background()

	_, err := store.Classifier(ctx, "clf.json")
	require.NoError(t, err)
	_, err = store.Regressor(ctx, "reg.json")
	require.NoError(t, err)
	_, err = store.Regressor(ctx, "clf.json")
	assert.ErrorIs(t, err, ErrWrongCapability)
	_, err = store.Classifier(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}
