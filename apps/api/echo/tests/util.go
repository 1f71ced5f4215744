package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/podium/apps/api/echo"
	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
	"github.com/trezcool/podium/storage/database/dummy"
	"github.com/trezcool/podium/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInvalidToken = httpErr{Error: "invalid or expired jwt"}
	errNotFound     = httpErr{Error: "not found"}
	errServer       = httpErr{Error: "Internal Server Error"}
)

type testApp struct {
	server *echoapi.Server
	conf   *core.Config
	svc    *achievement.Service
	repo   achievement.Repository
	stats  *dummydb.StatsSource
	logger *testutil.Logger
}

func setup(t *testing.T, configure ...func(conf *core.Config)) testApp {
	t.Helper()
	return setupWithRepo(t, nil, configure...)
}

// setupWithRepo wraps the achievement repository, to inject storage failures.
func setupWithRepo(t *testing.T, wrap func(achievement.Repository) achievement.Repository, configure ...func(conf *core.Config)) testApp {
	t.Helper()
	conf := testutil.NewConfig()
	for _, c := range configure {
		c(conf)
	}

	// set up DB & repos
	db, err := dummydb.Open()
	require.NoError(t, err)
	stats := dummydb.NewStatsSource(db)
	repo := dummydb.NewAchievementRepository(db)
	if wrap != nil {
		repo = wrap(repo)
	}

	// set up services
	logger := &testutil.Logger{}
	validate, translator := testutil.NewValidator()
	svc := achievement.NewService(testutil.DefaultCatalog(t), repo, stats, logger, conf)
	scheduler, err := achievement.NewScheduler(svc, logger, conf)
	require.NoError(t, err)

	// set up server
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		AchievementSvc: svc,
		Scheduler:      scheduler,
		Validate:       validate,
		Translator:     translator,
	})
	return testApp{server: server, conf: conf, svc: svc, repo: repo, stats: stats, logger: logger}
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

func (app testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app testApp) getToken(t *testing.T, userID string) string {
	token, err := echoapi.GenerateToken(echoapi.NewClaims(userID, app.conf), app.conf)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
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
		if rec.Body.Len() > 0 {
			t.Errorf("failed! data = %v; want no data", rec.Body.String())
		}
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

func runHttpTests(t *testing.T, app testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
