package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel zapcore.Level
	}{
		{name: "ok", status: http.StatusOK, body: `{"net":"1000"}`, wantLevel: zapcore.InfoLevel},
		{name: "implicit ok", status: 0, body: "hello", wantLevel: zapcore.InfoLevel},
		{name: "upstream failure", status: http.StatusBadGateway, body: "bad gateway", wantLevel: zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte(tt.body))
			})

			r := httptest.NewRequest(http.MethodGet, "/api/booking/summary", nil)
			r = r.WithContext(WithSessionID(r.Context(), "ses_1"))

			Logger(zap.New(core))(next).ServeHTTP(httptest.NewRecorder(), r)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("log entries = %d, want 1", len(entries))
			}
			entry := entries[0]
			if entry.Level != tt.wantLevel {
				t.Fatalf("level = %s, want %s", entry.Level, tt.wantLevel)
			}

			fields := entry.ContextMap()
			wantStatus := tt.status
			if wantStatus == 0 {
				wantStatus = http.StatusOK
			}
			if fields["status"] != int64(wantStatus) {
				t.Fatalf("status field = %v, want %d", fields["status"], wantStatus)
			}
			if fields["size"] != int64(len(tt.body)) {
				t.Fatalf("size field = %v, want %d", fields["size"], len(tt.body))
			}
			if fields["path"] != "/api/booking/summary" {
				t.Fatalf("path field = %v", fields["path"])
			}
			if fields["session"] != "ses_1" {
				t.Fatalf("session field = %v, want ses_1", fields["session"])
			}
		})
	}
}
