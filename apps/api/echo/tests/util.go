package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/entrykart/apps/api/echo"
	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
	logsvc "github.com/trezcool/entrykart/services/logger"
	testutil "github.com/trezcool/entrykart/tests"
)

var (
	conf = core.NewTestConfig()

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInvalidToken = httpErr{Error: "invalid or expired jwt"}
)

// fixture is an API server over in-memory storage with a frozen clock, populated with:
// superadmin super@test.in, admin admin@test.in (Green Park), admin other@test.in (Blue Hills),
// guard gate@test.in and owners owner@test.in (Green Park, Flat 1) and blue@test.in (Blue Hills, Flat 1).
type fixture struct {
	app   *Server
	repos testutil.Repos
	green society.Society
	blue  society.Society
}

func setup(t *testing.T, now time.Time) *fixture {
	_, repos := testutil.InMemRepos()
	validate, translator := testutil.NewValidation()
	logger := logsvc.NewDiscardLogger()

	socSvc := society.NewService(repos.Society, validate)
	accessSvc := access.NewService(repos.Access, repos.Society, validate)
	opts, err := maintenance.OptionsFromConfig(conf.Maintenance)
	if err != nil {
		t.Fatalf("OptionsFromConfig() failed: %v", err)
	}
	opts.NowFunc = func() time.Time { return now }

	f := &fixture{repos: repos}
	f.app = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		AccessSvc:      accessSvc,
		SocietySvc:     socSvc,
		MaintenanceSvc: maintenance.NewService(repos.Maintenance, socSvc, accessSvc, validate, logger, opts),
		Validate:       validate,
		Translator:     translator,
	})

	testutil.CreateAdmin(t, repos.Access, "super@test.in", access.RoleSuperAdmin)
	testutil.CreateAdmin(t, repos.Access, "admin@test.in", access.RoleAdmin)
	testutil.CreateAdmin(t, repos.Access, "other@test.in", access.RoleAdmin)
	f.green = testutil.CreateSociety(t, repos.Society, "Green Park", "admin@test.in", "Flat 1", "Flat 2")
	f.blue = testutil.CreateSociety(t, repos.Society, "Blue Hills", "other@test.in", "Flat 1")
	testutil.CreateGuard(t, repos.Access, "gate@test.in", f.green.ID)
	testutil.CreateOwner(t, repos.Society, f.green, "Flat 1", "owner@test.in")
	testutil.CreateOwner(t, repos.Society, f.blue, "Flat 1", "blue@test.in")
	return f
}

func (f *fixture) serve(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	f.app.ServeHTTP(rec, req)
	return rec
}

func ctx() context.Context {
	return context.Background()
}

func (f *fixture) ownerByEmail(t *testing.T, email string) society.FlatOwner {
	owner, err := f.repos.Society.GetOwnerByEmail(ctx(), email)
	if err != nil {
		t.Fatalf("ownerByEmail() failed: %v", err)
	}
	return owner
}

// recordOf returns the only maintenance record of the owner.
func (f *fixture) recordOf(t *testing.T, email string) maintenance.Record {
	owner := f.ownerByEmail(t, email)
	recs, err := f.repos.Maintenance.QueryRecords(ctx(), access.AllSocieties, maintenance.QueryFilter{OwnerID: owner.ID})
	if err != nil || len(recs) != 1 {
		t.Fatalf("recordOf() failed: %v; got %d records", err, len(recs))
	}
	return recs[0]
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, email string) string {
	token, err := GenerateToken([]byte(conf.SecretKey), NewClaims(conf, email))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchallObj(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarchallObj() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
