package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/user"
)

func newTestLogger(quiet bool) (*RollbarLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	conf := core.NewTestConfig()
	conf.TestMode = quiet
	logger := NewRollbarLogger(log.New(&buf, "TEST : ", 0), conf)
	logger.Enable(false)
	return logger, &buf
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger, _ := newTestLogger(true)
	usr := user.User{ID: "42", Username: "jdoe", Email: "jdoe@test.cd"}
	err := errors.New("boom")
	extras := map[string]interface{}{"stage_id": 3}

	args := logger.prepare("msg", []interface{}{err, usr, extras, user.User{ID: "43"}})
	assert.Equal(t, []interface{}{"msg", err, extras}, args)
}

func TestRollbarLogger_print(t *testing.T) {
	logger, buf := newTestLogger(false)
	logger.Warn("publishing change", errors.New("feed down"))
	assert.Contains(t, buf.String(), "TEST : publishing change")
	assert.Contains(t, buf.String(), "feed down")

	quiet, qbuf := newTestLogger(true)
	quiet.Info("hidden")
	quiet.Error("shown")
	assert.NotContains(t, qbuf.String(), "hidden")
	assert.Contains(t, qbuf.String(), "shown")
}
