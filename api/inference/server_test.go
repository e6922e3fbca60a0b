package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// labelPredictor labels every record by its petal_length
type labelPredictor struct {
	err error
	got []json.RawMessage
}

func (p *labelPredictor) Predict(_ context.Context, records []json.RawMessage) ([]json.RawMessage, error) {
	p.got = records
	if p.err != nil {
		return nil, p.err
	}
	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		var rec struct {
			PetalLength float64 `json:"petal_length"`
		}
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, err
		}
		label := "Iris-virginica"
		if rec.PetalLength < 2.5 {
			label = "Iris-setosa"
		}
		b, _ := json.Marshal(label)
		out = append(out, b)
	}
	return out, nil
}

func invoke(t *testing.T, p Predictor, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	NewRouter(p).ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	for _, method := range []string{"GET", "POST"} {
		rec := invoke(t, &labelPredictor{}, method, "/ping", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message": "Status okay"}`, rec.Body.String())
	}
}

func TestInvocations(t *testing.T) {
	p := &labelPredictor{}
	body := "{\"petal_length\": 1.4}\n\n{\"petal_length\": 5.1}\n"

	for _, ct := range []string{"application/json", "application/jsonlines", "application/json; charset=utf-8"} {
		rec := invoke(t, p, "POST", "/invocations", ct, body)
		require.Equal(t, http.StatusOK, rec.Code, ct)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "\"Iris-setosa\"\n\"Iris-virginica\"\n", rec.Body.String())
		assert.Len(t, p.got, 2)
	}
}

func TestInvocationsRejectsOtherContentTypes(t *testing.T) {
	for _, ct := range []string{"text/csv", ""} {
		rec := invoke(t, &labelPredictor{}, "POST", "/invocations", ct, "5.1,3.5,1.4,0.2")
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.JSONEq(t, `{"message": "This predictor only supports JSON Lines data"}`, rec.Body.String())
	}
}

func TestInvocationsBadInput(t *testing.T) {
	rec := invoke(t, &labelPredictor{}, "POST", "/invocations", "application/json", "{\"a\": 1}\nnot json\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "line 2")

	rec = invoke(t, &labelPredictor{}, "POST", "/invocations", "application/json", "\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvocationsPredictorFailure(t *testing.T) {
	rec := invoke(t, &labelPredictor{err: errors.New("model not loaded")}, "POST", "/invocations", "application/json", "{}\n")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "model not loaded")
}

func TestCommandPredictor(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	p, err := NewCommandPredictor("cat")
	require.NoError(t, err)

	out, err := p.Predict(context.Background(), []json.RawMessage{
		json.RawMessage(`{"x": 1}`),
		json.RawMessage(`{"x": 2}`),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.JSONEq(t, `{"x": 2}`, string(out[1]))

	_, err = NewCommandPredictor("  ")
	assert.Error(t, err)
}

func TestCommandPredictorFailure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	p, err := NewCommandPredictor("false")
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), []json.RawMessage{json.RawMessage(`{}`)})
	assert.Error(t, err)
}
