package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/feeledger/apps/api/echo"
	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	logsvc "github.com/trezcool/feeledger/services/logger"
	metricsvc "github.com/trezcool/feeledger/services/metrics"
	testutil "github.com/trezcool/feeledger/tests"
)

const schoolID = "school-1"

type testApp struct {
	*echoapi.Server
	testutil.Services
}

func setup(t *testing.T) testApp {
	conf := core.NewTestConfig()
	conf.Debug = false

	reg := prometheus.NewRegistry()
	metrics := metricsvc.NewPrometheus(reg)
	svcs := testutil.NewServices()
	logger := logsvc.NewNopLogger()
	svcs.Assignment = fee.NewAssignmentService(svcs.DB, svcs.DB, logger, metrics, fee.DefaultChunkSize)
	svcs.Ledger = fee.NewLedgerService(svcs.DB, logger, metrics)

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		CatalogSvc:     svcs.Catalog,
		AssignmentSvc:  svcs.Assignment,
		LedgerSvc:      svcs.Ledger,
		QuerySvc:       svcs.Query,
		Gatherer:       reg,
		DisableReqLogs: true,
	})
	return testApp{Server: server, Services: svcs}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	actor    string
	wantCode int
	wantData []byte
}

func newActorRequest(method, path, actor string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-Name", actor)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newActorRequest(method, path, "", data...)
}

// do serves a request and decodes the response body into out (when non nil).
func (app testApp) do(t *testing.T, method, path string, body interface{}, wantCode int, out interface{}) {
	t.Helper()
	var data []byte
	if body != nil {
		data = marshallObj(t, body)
	}
	req, rec := newRequest(method, path, data)
	app.ServeHTTP(rec, req)
	require.Equal(t, wantCode, rec.Code, "body: %s", rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newActorRequest(tt.method, tt.path, tt.actor, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
