package account

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bulkSID(i int) string {
	return fmt.Sprintf("AC%030dxx", i)
}

func bulkToken(i int) string {
	return fmt.Sprintf("%030dxx", i)
}

func TestParseBulkBasicLines(t *testing.T) {
	blob := bulkSID(1) + " " + bulkToken(1) + "\n" + bulkSID(2) + " " + bulkToken(2)
	res := ParseBulk(blob, 30)

	require.Len(t, res.Accounts, 2)
	assert.Equal(t, bulkSID(1), res.Accounts[0].ID)
	assert.Empty(t, res.Rejected)
	assert.False(t, res.Truncated)
}

func TestParseBulkSeparatorNormalization(t *testing.T) {
	for _, sep := range []string{",", ":", "|", "\t", "  "} {
		res := ParseBulk(bulkSID(1)+sep+bulkToken(1), 30)
		require.Len(t, res.Accounts, 1, "separator %q", sep)
		assert.Equal(t, bulkToken(1), res.Accounts[0].Secret())
	}
}

func TestParseBulkBareTokenJoinsPrecedingSID(t *testing.T) {
	blob := bulkSID(1) + "\n" + bulkToken(1)
	res := ParseBulk(blob, 30)

	require.Len(t, res.Accounts, 1)
	assert.Equal(t, bulkSID(1), res.Accounts[0].ID)
	assert.Equal(t, bulkToken(1), res.Accounts[0].Secret())
}

func TestParseBulkRejectsMalformed(t *testing.T) {
	blob := strings.Join([]string{
		bulkSID(1) + " " + bulkToken(1),
		"XX123456789012345678901234567890AB " + bulkToken(2), // wrong prefix
		bulkSID(3) + " short-token-not-32-chars-wide!!",      // bad token chars
	}, "\n")
	res := ParseBulk(blob, 30)

	require.Len(t, res.Accounts, 1)
	assert.Len(t, res.Rejected, 2)
	assert.Contains(t, res.Rejected[2], "SID must start with AC")
}

func TestParseBulkDeduplicatesSIDs(t *testing.T) {
	blob := bulkSID(1) + " " + bulkToken(1) + "\n" + bulkSID(1) + " " + bulkToken(2)
	res := ParseBulk(blob, 30)

	require.Len(t, res.Accounts, 1)
	assert.Equal(t, bulkToken(1), res.Accounts[0].Secret())
	assert.Contains(t, res.Rejected[2], "duplicate")
}

func TestParseBulkTruncatesAtLimit(t *testing.T) {
	var lines []string
	for i := 0; i < 5; i++ {
		lines = append(lines, bulkSID(i)+" "+bulkToken(i))
	}
	res := ParseBulk(strings.Join(lines, "\n"), 3)

	assert.Len(t, res.Accounts, 3)
	assert.True(t, res.Truncated)
}

func TestParseBulkSkipsBlankAndNoiseLines(t *testing.T) {
	blob := "\n\n  \nshort\n" + bulkSID(1) + " " + bulkToken(1) + "\n"
	res := ParseBulk(blob, 30)
	require.Len(t, res.Accounts, 1)
}

func TestValidatePair(t *testing.T) {
	assert.NoError(t, ValidatePair(bulkSID(1), bulkToken(1)))
	assert.Error(t, ValidatePair("AC123", bulkToken(1)))
	assert.Error(t, ValidatePair(bulkSID(1), "short"))
	assert.Error(t, ValidatePair(strings.Replace(bulkSID(1), "AC", "ZZ", 1), bulkToken(1)))
}
