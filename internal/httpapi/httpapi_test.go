package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	cell "github.com/sharecell/cell"
	"github.com/sharecell/cell/pkg/sheet"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := cell.New(cell.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	api := New(svc, nil)
	go api.Run()
	t.Cleanup(api.Stop)

	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)
	return ts
}

func createSheet(t *testing.T, ts *httptest.Server, owner, title string) sheet.Record {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "seed"))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("userId", owner))
	require.NoError(t, form.WriteField("title", title))
	part, err := form.CreateFormFile("file", "upload.xlsx")
	require.NoError(t, err)
	_, err = part.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, form.Close())

	resp, err := http.Post(ts.URL+"/sheets", form.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var record sheet.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	return record
}

func TestCreateAndReadSheet(t *testing.T) {
	ts := newTestServer(t)
	rec := createSheet(t, ts, "alice", "Budget")

	resp, err := http.Get(fmt.Sprintf("%s/sheets/%s?token=%s", ts.URL, rec.ID, rec.ReadToken))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ws sheet.Worksheet
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ws))
	assert.Equal(t, []sheet.Cell{{Row: 1, Col: "A", Val: "seed"}}, ws.Cells)
}

func TestReadWithWrongTokenIsForbidden(t *testing.T) {
	ts := newTestServer(t)
	rec := createSheet(t, ts, "alice", "Budget")

	resp, err := http.Get(fmt.Sprintf("%s/sheets/%s?token=wrong", ts.URL, rec.ID))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReadUnknownSheetIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/sheets/does-not-exist?token=x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestModifyRequiresWriteToken(t *testing.T) {
	ts := newTestServer(t)
	rec := createSheet(t, ts, "alice", "Budget")

	// The read token must not grant modification.
	resp := postModify(t, ts, rec.ID, rec.ReadToken, "B2", "42")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = postModify(t, ts, rec.ID, rec.ModifyToken, "B2", "42")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ws sheet.Worksheet
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ws))
	assert.Contains(t, ws.Cells, sheet.Cell{Row: 2, Col: "B", Val: "42"})
}

func TestModifyInvalidCellReference(t *testing.T) {
	ts := newTestServer(t)
	rec := createSheet(t, ts, "alice", "Budget")

	resp := postModify(t, ts, rec.ID, rec.ModifyToken, "not-a-cell", "42")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListSheetsForOwner(t *testing.T) {
	ts := newTestServer(t)
	first := createSheet(t, ts, "alice", "First")
	second := createSheet(t, ts, "alice", "Second")

	resp, err := http.Get(ts.URL + "/users/alice/sheets")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []sheet.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)
}

func postModify(t *testing.T, ts *httptest.Server, sid, token, cellRef, value string) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]string{"token": token, "cell": cellRef, "value": value})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/sheets/"+sid+"/cells", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}
