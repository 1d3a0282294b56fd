package admin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/carbondale-church/archiver"
	"github.com/carbondale-church/archiver/internal/livestate"
)

func Test_Server_handleRun(t *testing.T) {
	tests := []struct {
		name       string
		r          *mockRunner
		wantStatus int
		wantBody   string
	}{
		{
			"normal usage",
			&mockRunner{
				summary: &archiver.RunSummary{
					RunId:     uuid.MustParse("bc5c85f6-fe55-4169-ae06-4b390ac13e80"),
					StartedAt: time.Date(2024, 6, 9, 17, 0, 0, 0, time.UTC),
					Downloads: []archiver.Download{},
					Skipped:   []archiver.Skipped{},
					Notes:     []string{},
				},
			},
			http.StatusOK,
			`{"runId":"bc5c85f6-fe55-4169-ae06-4b390ac13e80","startedAt":"2024-06-09T17:00:00Z","finishedAt":null,"downloads":[],"skipped":[],"notes":[]}`,
		},
		{
			"run already in progress elsewhere is a 409",
			&mockRunner{
				err: fmt.Errorf("failed to acquire state lock: %w", livestate.ErrLockTimeout),
			},
			http.StatusConflict,
			"failed to acquire state lock: timed out waiting for state lock",
		},
		{
			"any other error is a 500",
			&mockRunner{
				err: fmt.Errorf("oh no"),
			},
			http.StatusInternalServerError,
			"oh no",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{
				r:   tt.r,
				now: func() time.Time { return time.Date(2024, 6, 9, 17, 0, 0, 0, time.UTC) },
			}
			req := httptest.NewRequest(http.MethodPost, "/admin/run", nil)
			res := httptest.NewRecorder()
			s.handleRun(res, req)

			b, err := io.ReadAll(res.Body)
			assert.NoError(t, err)
			body := strings.TrimSuffix(string(b), "\n")
			assert.Equal(t, tt.wantStatus, res.Code)
			assert.Equal(t, tt.wantBody, body)
			assert.Equal(t, time.Date(2024, 6, 9, 17, 0, 0, 0, time.UTC), tt.r.gotNow)
		})
	}
}

type mockRunner struct {
	err     error
	summary *archiver.RunSummary
	gotNow  time.Time
}

func (m *mockRunner) Run(ctx context.Context, now time.Time) (*archiver.RunSummary, error) {
	m.gotNow = now
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}
