package restyutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mmp-pipeline/lib/testutil"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"web_id":"1"}]`))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "dump")
	output, err := NewDirOutput(dir)
	require.NoError(t, err)

	client := resty.New()
	Dump(client, "retriever", output, &testutil.Recorder{})

	for i := 0; i < 2; i++ {
		_, err = client.R().SetHeader("X-Test", "yes").Get(server.URL + "/incidents/2014/json")
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	contents, err := os.ReadFile(filepath.Join(dir, "retriever-1.txt"))
	require.NoError(t, err)
	transcript := string(contents)
	require.True(t, strings.HasPrefix(transcript, "---- REQUEST ----\n\nGET "+server.URL+"/incidents/2014/json"))
	require.Contains(t, transcript, "X-Test: yes")
	require.Contains(t, transcript, "---- RESPONSE ----\n\n200 ")
	require.Contains(t, transcript, "Content-Type: application/json")
	require.True(t, strings.HasSuffix(transcript, `[{"web_id":"1"}]`))
}

type failingOutput struct{}

func (failingOutput) Write(string, string) error {
	return os.ErrPermission
}

func TestDumpReportsWriteFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	tel := &testutil.Recorder{}
	client := resty.New()
	Dump(client, "catalog", failingOutput{}, tel)

	_, err := client.R().Get(server.URL)
	require.NoError(t, err)
	require.Len(t, tel.Events(testutil.KindWarning, report_dump_write), 1)
}
