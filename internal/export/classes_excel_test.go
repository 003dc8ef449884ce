package export

import (
	"testing"
	"time"

	"festival-mileage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassRankingWorkbook(t *testing.T) {
	rows := []domain.ClassStat{
		{Grade: 2, Class: 3, Members: 2, Total: 300, Average: 150},
		{Grade: 1, Class: 1, Members: 4, Total: 200, Average: 50},
	}
	f, err := ClassRankingWorkbook(rows, time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(classSheet)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, classHeader, got[0])
	assert.Equal(t, []string{"1", "2", "3", "2", "300"}, got[1][:5])
	assert.Equal(t, "2", got[2][0])
}

func TestClassRankingFilename(t *testing.T) {
	name := ClassRankingFilename(time.Date(2025, 10, 1, 9, 5, 0, 0, time.UTC))
	assert.Equal(t, "class ranking 2025-10-01 0905.xlsx", name)
}

func TestColName(t *testing.T) {
	assert.Equal(t, "A", colName(1))
	assert.Equal(t, "Z", colName(26))
	assert.Equal(t, "AA", colName(27))
}
