package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/agrisense-backend/internal/config"
	"github.com/tbourn/agrisense-backend/internal/domain"
)

func TestNormalizeSmythos_Shapes(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		shape  smythosShape
		action bool
		msg    string
	}{
		{"flat bool", `{"analysis":"a","actionRequired":true,"message":"m"}`, shapeFlat, true, "m"},
		{"flat string", `{"analysis":"a","actionRequired":"false"}`, shapeFlat, false, ""},
		{"nested", `{"id":"x","name":"agent","result":{"Output":{"analysis":"a","actionRequired":"yes","message":"সেচ"}}}`, shapeNested, true, "সেচ"},
		{"nested numeric", `{"result":{"Output":{"analysis":"a","actionRequired":1}}}`, shapeNested, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, shape, err := normalizeSmythos([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.shape, shape)
			assert.Equal(t, tc.action, out.ActionRequired.val)
			if tc.msg != "" {
				require.NotNil(t, out.Message)
				assert.Equal(t, tc.msg, *out.Message)
			}
		})
	}
}

func TestNormalizeSmythos_MissingFields(t *testing.T) {
	for _, raw := range []string{
		`{"analysis":"a"}`,
		`{"actionRequired":true}`,
		`{"result":{"Output":{"message":"m"}}}`,
		`{"actionRequired":null,"analysis":"a"}`,
		`[]`,
	} {
		_, _, err := normalizeSmythos([]byte(raw))
		assert.ErrorIs(t, err, ErrUpstream, raw)
	}
}

func TestSmythos_Analyze_PostsContextWithHeaders(t *testing.T) {
	var body struct {
		FarmerData domain.FarmContext `json:"farmerData"`
		UserID     string             `json:"userId"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "smythos", r.Header.Get("x-ai-provider"))
		assert.Equal(t, "https://cb.example/analysis", r.Header.Get("x-webhook-callback"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"result":{"Output":{"analysis":"শুষ্ক","actionRequired":true,"message":"সেচ দিন"}}}`))
	}))
	defer srv.Close()

	s := NewSmythos(config.AIConfig{SmythosURL: srv.URL, AnalysisCallbackURL: "https://cb.example/analysis"}, nil)
	res, err := s.Analyze(context.Background(), sampleContext(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", body.UserID)
	assert.Equal(t, "Rahim", body.FarmerData.Farmer.Name)
	assert.Equal(t, ProviderSmythos, res.Provider)
	assert.True(t, res.ActionRequired)
	assert.Equal(t, "সেচ দিন", res.Message)
	assert.Equal(t, DefaultSmythosTimeout, s.HTTP.Timeout)
}

func TestSmythos_Analyze_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSmythos(config.AIConfig{SmythosURL: srv.URL, SmythosTimeout: time.Second}, nil)
	_, err := s.Analyze(context.Background(), sampleContext(), "u1")
	require.ErrorIs(t, err, ErrUpstream)

	_, err = NewSmythos(config.AIConfig{}, nil).Analyze(context.Background(), sampleContext(), "u1")
	require.ErrorIs(t, err, ErrUpstream)
}

func TestSmythos_Chat_DelegatesOrFallsBack(t *testing.T) {
	s := NewSmythos(config.AIConfig{}, nil)
	reply, err := s.Chat(context.Background(), sampleContext(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply(sampleContext()), reply)
}

func TestCallbackValidators(t *testing.T) {
	assert.True(t, ValidAnalysisCallback([]byte(`{"analysis":"ok","actionRequired":"no"}`)))
	assert.True(t, ValidAnalysisCallback([]byte(`{"result":{"Output":{"analysis":"ok","actionRequired":true}}}`)))
	assert.False(t, ValidAnalysisCallback([]byte(`{"analysis":"ok"}`)))

	txt, ok := ChatCallbackText([]byte(`{"result":{"Output":{"response":"hello"}}}`))
	assert.True(t, ok)
	assert.Equal(t, "hello", txt)
	txt, ok = ChatCallbackText([]byte(`{"response":"flat"}`))
	assert.True(t, ok)
	assert.Equal(t, "flat", txt)
	_, ok = ChatCallbackText([]byte(`{"response":42}`))
	assert.False(t, ok)
}
