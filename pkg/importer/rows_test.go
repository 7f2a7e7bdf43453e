package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRowsNormalisesHeaders(t *testing.T) {
	doc := "\ufeffName , RollNumber,Year, Semester ,Batch\n" +
		"Asha,MCA001,1,2,2025\n" +
		"\n" +
		"Ravi, MCA002 ,,, \n" +
		",,,,\n"

	rows, err := ReadRows(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Asha", rows[0].Get("Name"))
	assert.Equal(t, "MCA001", rows[0].Get("RollNumber"))
	assert.Equal(t, "MCA001", rows[0].Get("Roll Number"))
	assert.Equal(t, "2", rows[0].Get("semester"))
	assert.Equal(t, "MCA002", rows[1].Get("roll_number"))
	assert.Equal(t, "", rows[1].Get("Year"))
}

func TestReadRowsToleratesRaggedLines(t *testing.T) {
	rows, err := ReadRows(strings.NewReader("Name,RollNumber,Batch\nAsha,MCA001\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Get("Batch"))
}

func TestReadRowsEmptyInput(t *testing.T) {
	rows, err := ReadRows(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}
