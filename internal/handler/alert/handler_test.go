package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/cds-engine/internal/middleware"
	"github.com/jwalitptl/cds-engine/internal/model"
)

type transitionCall struct {
	id, by, notes string
}

type fakeHistory struct {
	HistoryService
	calls []transitionCall
}

func (f *fakeHistory) AcknowledgeAlert(ctx context.Context, historyID, by, notes string) error {
	f.calls = append(f.calls, transitionCall{historyID, by, notes})
	return nil
}

func (f *fakeHistory) GetHistoryEntry(ctx context.Context, historyID string) (model.CDSAlertHistory, error) {
	return model.CDSAlertHistory{ID: historyID, Status: model.StatusAcknowledged}, nil
}

func newEngine(svc HistoryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	NewHandler(svc).RegisterRoutes(r.Group("/cds"))
	return r
}

func TestAcknowledge_Bodies(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		noBody     bool
		chunked    bool
		wantStatus int
		want       transitionCall
	}{
		{
			name:       "sized body",
			body:       `{"by":"dr-a","notes":"seen"}`,
			wantStatus: http.StatusOK,
			want:       transitionCall{"h1", "dr-a", "seen"},
		},
		{
			name:       "chunked body",
			body:       `{"by":"dr-b","notes":"called patient"}`,
			chunked:    true,
			wantStatus: http.StatusOK,
			want:       transitionCall{"h1", "dr-b", "called patient"},
		},
		{
			name:       "chunked empty body",
			body:       "",
			chunked:    true,
			wantStatus: http.StatusOK,
			want:       transitionCall{"h1", "", ""},
		},
		{
			name:       "no body",
			noBody:     true,
			wantStatus: http.StatusOK,
			want:       transitionCall{"h1", "", ""},
		},
		{
			name:       "malformed chunked body",
			body:       `{"notes":`,
			chunked:    true,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeHistory{}
			r := newEngine(svc)

			var req *http.Request
			if tt.noBody {
				req = httptest.NewRequest(http.MethodPost, "/cds/alerts/h1/acknowledge", nil)
			} else {
				req = httptest.NewRequest(http.MethodPost, "/cds/alerts/h1/acknowledge", strings.NewReader(tt.body))
				req.Header.Set("Content-Type", "application/json")
				if tt.chunked {
					req.ContentLength = -1
					req.TransferEncoding = []string{"chunked"}
				}
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, svc.calls)
				return
			}
			require.Len(t, svc.calls, 1)
			assert.Equal(t, tt.want, svc.calls[0])

			var resp struct {
				Data model.CDSAlertHistory `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "h1", resp.Data.ID)
		})
	}
}

func TestAcknowledge_AuthenticatedUserWins(t *testing.T) {
	svc := &fakeHistory{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(), func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "dr-token")
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/cds"))

	req := httptest.NewRequest(http.MethodPost, "/cds/alerts/h1/acknowledge", strings.NewReader(`{"by":"someone-else"}`))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.calls, 1)
	assert.Equal(t, "dr-token", svc.calls[0].by)
}
