package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/access"
	"github.com/trezcool/firststep/core/document"
	"github.com/trezcool/firststep/core/journey"
	"github.com/trezcool/firststep/core/user"
	"github.com/trezcool/firststep/fs"
	"github.com/trezcool/firststep/services/changefeed"
	"github.com/trezcool/firststep/services/email"
	inmemdb "github.com/trezcool/firststep/storage/database/inmem"
	"github.com/trezcool/firststep/testutil"
)

const testPwd = "Onb0ard!ng-2020"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	srv     *Server
	deps    *Deps
	usrRepo user.Repository
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := core.NewTestConfig()
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	user.LoadCommonPasswords(appfs.FS, logger)
	emailsvc.ClearSentMessages()

	// set up DB & repos
	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)

	// set up services
	feed := changefeed.NewMemoryFeed()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	validate, translator := testutil.NewValidator()
	deps := &Deps{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Feed:        feed,
		UserSvc:     user.NewService(usrRepo, feed, mailSvc, logger, conf),
		JourneySvc:  journey.NewService(inmemdb.NewJourneyRepository(db), feed, logger),
		DocumentSvc: document.NewService(inmemdb.NewDocumentRepository(db), feed, logger),
		AccessSvc:   access.NewService(inmemdb.NewAccessRepository(db), feed, logger),
	}

	// set up server
	return &testApp{srv: NewServer(deps), deps: deps, usrRepo: usrRepo}
}

func (app *testApp) createUser(t *testing.T, name, uname string, roles []string, isActive bool, createdAt ...time.Time) user.User {
	t.Helper()
	return testutil.CreateUser(t, app.usrRepo, name, uname, uname+"@test.cd", testPwd, roles, isActive, createdAt...)
}

func (app *testApp) setBuddy(t *testing.T, usr, buddy user.User) user.User {
	t.Helper()
	usr.BuddyID = null.StringFrom(buddy.ID)
	usr, err := app.usrRepo.UpdateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("UpdateUser(): %v", err)
	}
	return usr
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := app.srv.auth.generateToken(app.srv.auth.userClaims(usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func (app *testApp) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.srv.ServeHTTP(rec, req)
	return rec
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
	extra    interface{}
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

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", rec.Body.String(), err)
	}
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
	t.Helper()
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

func TestServer_home(t *testing.T) {
	app := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	app.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
	}
	if want := "Welcome to FirstStep API!"; rec.Body.String() != want {
		t.Errorf("failed! body = %q; want %q", rec.Body.String(), want)
	}
}
