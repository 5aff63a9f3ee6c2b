package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeaderProvider(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    User
		wantErr bool
	}{
		{
			name:    "no headers",
			wantErr: true,
		},
		{
			name:    "blank id",
			headers: map[string]string{HeaderUserID: "   "},
			wantErr: true,
		},
		{
			name: "full identity",
			headers: map[string]string{
				HeaderUserID:    "u-42",
				HeaderUserEmail: "ada@example.com",
				HeaderUserName:  " Ada ",
			},
			want: User{ID: "u-42", Email: "ada@example.com", DisplayName: "Ada"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, err := HeaderProvider{}.CurrentUser(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CurrentUser() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("CurrentUser() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen User
	h := Middleware(HeaderProvider{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.Header.Set(HeaderUserID, "u1")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen.ID != "u1" {
		t.Fatalf("expected pass-through with user, got %d %+v", rec.Code, seen)
	}
}
