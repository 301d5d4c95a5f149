package webui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripcore.ridepulse.org/internal/app"
	"tripcore.ridepulse.org/internal/appconf"
)

func TestDebugIndexHandler_ProductionReturns404(t *testing.T) {
	webUI := &WebUI{
		Application: &app.Application{
			Config: appconf.Config{Env: appconf.Production},
		},
	}

	req, _ := http.NewRequest("GET", "/debug?dataType=rooms", nil)
	rr := httptest.NewRecorder()

	webUI.debugIndexHandler(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code, "Should return 404 in Production")
}

func TestDebugIndexHandler_UnknownDataType(t *testing.T) {
	webUI := &WebUI{
		Application: &app.Application{
			Config: appconf.Config{Env: appconf.Development},
		},
	}

	req, _ := http.NewRequest("GET", "/debug?dataType=bogus", nil)
	rr := httptest.NewRecorder()

	webUI.debugIndexHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "rooms, stops, config"))
}
