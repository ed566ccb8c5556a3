package mapping

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/dates"
	"github.com/Ramsey-B/fern/pkg/fieldmapping"
)

func TestMap(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	mapper, err := fieldmapping.NewMapper(logger, dates.NewLayoutResolver())
	require.NoError(t, err)
	container, err := ectoinject.NewDIDefaultContainer()
	require.NoError(t, err)
	require.NoError(t, ectoinject.RegisterInstance[Mapper](container, mapper))

	call := func(body string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/mappings", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		return rec, Map(echo.New().NewContext(req, rec))
	}

	t.Run("passport", func(t *testing.T) {
		rec, err := call(`{"category":"passport","payload":{"passport_no":"N1234567","date_of_birth":"15/03/1990"}}`)
		require.NoError(t, err)

		var out fieldmapping.Mapping
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "PASSPORT", string(out.Category))
		assert.Equal(t, "N1234567", out.Fields["passportNumber"])
		assert.Equal(t, "1990-03-15", out.Fields["dateOfBirth"])
	})

	t.Run("unknown category maps as other", func(t *testing.T) {
		rec, err := call(`{"category":"utility bill","payload":{"name":"Jane Doe"}}`)
		require.NoError(t, err)

		var out fieldmapping.Mapping
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "OTHER", string(out.Category))
	})

	t.Run("missing payload", func(t *testing.T) {
		_, err := call(`{"category":"passport"}`)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})
}
