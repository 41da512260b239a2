package generateshots

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro-pipeline-server/modules/common/model"
)

type fakeGenerator struct {
	gotFrame   string
	gotContext string
	gotCount   int
	shots      []model.Shot
	err        error
}

func (f *fakeGenerator) GenerateShots(ctx context.Context, middleFrameDataURL, contextText string, shotCount int) ([]model.Shot, error) {
	f.gotFrame = middleFrameDataURL
	f.gotContext = contextText
	f.gotCount = shotCount
	return f.shots, f.err
}

func postShots(t *testing.T, generator ShotGenerator, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	NewGenerateShotsHandler(generator).RegisterRoutes(r)

	req := httptest.NewRequest("POST", "/api/generate-shots", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGenerateShotsEndpoint(t *testing.T) {
	generator := &fakeGenerator{
		shots: []model.Shot{{ID: 1, Text: "wide"}, {ID: 2, Text: "close"}},
	}

	body := `{"middleFrame":"data:image/jpeg;base64,AAAA","contextText":"a chase","shotCount":2}`
	rec := postShots(t, generator, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", generator.gotFrame)
	assert.Equal(t, "a chase", generator.gotContext)
	assert.Equal(t, 2, generator.gotCount)

	var resp shotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, generator.shots, resp.Shots)
}

func TestGenerateShotsEndpointRejectsMissingFrame(t *testing.T) {
	rec := postShots(t, &fakeGenerator{}, `{"contextText":"a chase"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateShotsEndpointReportsStageError(t *testing.T) {
	generator := &fakeGenerator{err: errors.New("director analysis failed")}

	rec := postShots(t, generator, `{"middleFrame":"data:image/jpeg;base64,AAAA"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp shotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "director analysis failed")
}
