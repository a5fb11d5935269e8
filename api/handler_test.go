package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	"github.com/tanpawarit/smartops-bi/agent/warehouse"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeAssistant struct {
	answer string
	err    error
	got    []string
}

func (f *fakeAssistant) Ask(_ context.Context, message string) (string, error) {
	f.got = append(f.got, message)
	return f.answer, f.err
}

type fakeCatalog struct {
	pingErr error
}

func (fakeCatalog) ListTables(context.Context) ([]string, error) {
	return []string{"farms", "harvests"}, nil
}

func (fakeCatalog) DescribeTable(_ context.Context, name string) (warehouse.Table, error) {
	if name == "harvests" {
		return warehouse.Table{}, warehouse.ErrTableNotFound
	}
	return warehouse.Table{Name: name, Columns: []warehouse.Column{{Name: "id", DataType: "integer", Nullable: "NO"}}}, nil
}

func (fakeCatalog) Counts(context.Context) ([]warehouse.TableCount, error) {
	return []warehouse.TableCount{{Table: "farms", Rows: 3}, {Table: "harvests", Rows: 12}}, nil
}

func (f fakeCatalog) Ping(context.Context) error { return f.pingErr }

func newTestRouter(assistant Assistant, catalog Catalog) *gin.Engine {
	h := NewHandler(assistant, catalog, nil, "Agente não inicializado", Config{})
	return NewRouter(h, Config{AllowedOrigins: []string{"*"}})
}

func doJSON(t *testing.T, r http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestChatSuccess(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{answer: "Existem 3 fazendas."}
	rec := doJSON(t, newTestRouter(assistant, nil), http.MethodPost, "/chat", `{"message":"Quantas fazendas?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "Existem 3 fazendas." || !resp.Success || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(assistant.got) != 1 || assistant.got[0] != "Quantas fazendas?" {
		t.Fatalf("assistant got %#v", assistant.got)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("missing request id header")
	}
}

func TestChatAssistantErrorKeepsAnswer(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{
		answer: "Desculpe, tive um problema ao processar sua consulta.",
		err:    fmt.Errorf("%w: generate: timeout\ngoroutine 7 [running]", contractx.ErrModelInvoke),
	}
	rec := doJSON(t, newTestRouter(assistant, nil), http.MethodPost, "/chat", `{"message":"oi"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.Error == nil || *resp.Error != "failed to process the question" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Response != assistant.answer {
		t.Fatalf("Response = %q", resp.Response)
	}
}

func TestChatNotReady(t *testing.T) {
	t.Parallel()

	rec := doJSON(t, newTestRouter(nil, nil), http.MethodPost, "/chat", `{"message":"oi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["detail"] != "Agente não inicializado" {
		t.Fatalf("detail = %q", body["detail"])
	}
}

func TestChatMalformedJSON(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{answer: "x"}
	rec := doJSON(t, newTestRouter(assistant, nil), http.MethodPost, "/chat", `{"message":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(assistant.got) != 0 {
		t.Fatal("assistant must not be called on bad input")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := doJSON(t, newTestRouter(&fakeAssistant{}, fakeCatalog{pingErr: errors.New("refused")}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["agent_ready"] != true {
		t.Fatalf("unexpected health: %#v", body)
	}
	if body["database"] != "error: refused" || body["model"] != "not configured" {
		t.Fatalf("unexpected dependency status: %#v", body)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	rec := doJSON(t, newTestRouter(nil, fakeCatalog{}), http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalRows != 15 || len(resp.Tables) != 2 {
		t.Fatalf("unexpected stats: %+v", resp)
	}

	rec = doJSON(t, newTestRouter(nil, nil), http.MethodGet, "/stats", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without catalog = %d", rec.Code)
	}
}

func TestTablesSkipsVanishedTables(t *testing.T) {
	t.Parallel()

	rec := doJSON(t, newTestRouter(nil, fakeCatalog{}), http.MethodGet, "/tables", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Tables []warehouse.Table `json:"tables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tables) != 1 || body.Tables[0].Name != "farms" {
		t.Fatalf("unexpected tables: %+v", body.Tables)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	r := NewRouter(NewHandler(nil, nil, nil, "", Config{}), Config{AllowedOrigins: []string{"https://bi.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://bi.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://bi.example.com" {
		t.Fatalf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected allow origin for foreign origin")
	}
}

func TestClientErrorHidesInternalDetail(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: blank message", contractx.ErrValidation), "invalid message"},
		{fmt.Errorf("%w: panic: boom\ngoroutine 1 [running]", contractx.ErrModelInvoke), "failed to process the question"},
		{errors.New("[NodeRunError] tool_rounds"), "failed to process the question"},
	}
	for _, tc := range cases {
		if got := clientError(tc.err); got != tc.want {
			t.Fatalf("clientError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
