package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		name, profile, bondID string
		want                  Profile
	}{
		{"explicit", "volatile", "BOND_01", ProfileVolatile},
		{"known bond", "", "BOND_02", ProfileDegrading},
		{"unknown bond", "", "BOND-ABC123", ProfileNormal},
		{"whitespace", "  high_performance ", "", ProfileHighPerformance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProfile(tt.profile, tt.bondID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseProfile("erratic", "")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestBondCloneIsIndependent(t *testing.T) {
	b := Bond{ID: "B", AuditLog: []AuditRecord{{Date: "2024-01-01"}}}
	c := b.Clone()
	c.AuditLog[0].TxLink = "x"
	c.AuditLog = append(c.AuditLog, AuditRecord{Date: "2024-01-02"})

	assert.Empty(t, b.AuditLog[0].TxLink)
	assert.Len(t, b.AuditLog, 1)
	assert.Equal(t, 0, b.FindAudit("2024-01-01"))
	assert.Equal(t, -1, b.FindAudit("2024-01-02"))
}

func TestParseDate(t *testing.T) {
	_, err := ParseDate("2024-02-30")
	assert.ErrorIs(t, err, ErrValidation)

	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 29, d.Day())
}
