package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `Date/Time MPNET,MITRE Tactic,Source Hostname/IP,Target Hostname/IP,Details,Notes,Operator,Attack Chain
"04/01/2025, 0830",Initial Access,192.168.1.5,10.0.0.15,Brute force on SSH,Urgent,Alice,Chain Alpha
"04/01/2025, 0915",Execution,10.0.0.15,10.0.0.15,Dropped loader,,Alice,Chain Alpha
,,,,,,,
No Data,C2,10.0.0.15,203.0.113.7,Beacon observed,,Bob,Chain Alpha
`

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateHeader(t *testing.T) {
	path := writeExport(t, sampleExport)
	require.NoError(t, ValidateHeader(path))
}

func TestValidateHeaderRejectsWrongColumns(t *testing.T) {
	short := writeExport(t, "timestamp,tactic\n1,2\n")
	err := ValidateHeader(short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header too short")

	renamed := writeExport(t, "Timestamp,MITRE Tactic,Source Hostname/IP,Target Hostname/IP,Details,Notes,Operator,Attack Chain\n")
	err = ValidateHeader(renamed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Date/Time MPNET")
}

func TestReadRecords(t *testing.T) {
	path := writeExport(t, sampleExport)

	result, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, result.Records, 3)
	assert.Equal(t, 1, result.Skipped, "row without a tactic is a spacer row")

	first := result.Records[0]
	assert.Equal(t, "04/01/2025, 0830", first.Timestamp)
	assert.Equal(t, "Initial Access", first.Tactic)
	assert.Equal(t, "192.168.1.5", first.SourceHost)
	assert.Equal(t, "10.0.0.15", first.DestHost)
	assert.Equal(t, "Chain Alpha", first.ChainID)

	// The unparseable timestamp survives as-is; the store decides.
	assert.Equal(t, "No Data", result.Records[2].Timestamp)
}

func TestReadRecordsStripsNullBytes(t *testing.T) {
	raw := "Date/Time MPNET,MITRE Tactic,Source Hostname/IP,Target Hostname/IP,Details,Notes,Operator,Attack Chain\n" +
		"\"04/01/2025, 0830\",Exfil\x00tration,a,b,c,d,e,Chain One\n"
	path := writeExport(t, raw)

	result, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Exfiltration", result.Records[0].Tactic)
}

func TestReadRecordsShortRow(t *testing.T) {
	raw := "Date/Time MPNET,MITRE Tactic,Source Hostname/IP,Target Hostname/IP,Details,Notes,Operator,Attack Chain\n" +
		"\"04/01/2025, 0830\",Persistence\n"
	path := writeExport(t, raw)

	result, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Persistence", result.Records[0].Tactic)
	assert.Empty(t, result.Records[0].ChainID)
}
