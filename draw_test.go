package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Seednode/secretsanta/exchange"
)

func TestLoadRosterFile(t *testing.T) {
	t.Run("reads names and exclusions", func(t *testing.T) {
		roster, err := loadRosterFile(strings.NewReader(`participants:
  - name: Alice
    excluding:
      - Bob
  - name: " Bob "
  - name: Charlie
`))
		require.NoError(t, err)
		require.Equal(t, []string{"Alice", "Bob", "Charlie"}, roster.Names())

		alice, err := roster.Find("Alice")
		require.NoError(t, err)
		require.Equal(t, []string{"Bob"}, alice.Excluding)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := loadRosterFile(strings.NewReader(`participants:
  - name: Alice
    email: alice@example.com
`))
		require.ErrorContains(t, err, "parsing roster")
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		_, err := loadRosterFile(strings.NewReader(`participants:
  - name: Alice
  - name: Alice
`))
		require.ErrorIs(t, err, exchange.ErrDuplicateName)
	})

	t.Run("rejects empty names", func(t *testing.T) {
		_, err := loadRosterFile(strings.NewReader(`participants:
  - name: ""
`))
		require.ErrorIs(t, err, exchange.ErrEmptyName)
	})
}

func TestWriteDrawTable(t *testing.T) {
	var out bytes.Buffer
	writeDrawTable(&out, []exchange.Participant{
		{Name: "Alice", GivingTo: "Bob"},
		{Name: "Bob", GivingTo: "Alice"},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"Giver", "Recipient"}, strings.Fields(lines[0]))
	require.Equal(t, []string{"Alice", "Bob"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"Bob", "Alice"}, strings.Fields(lines[2]))
}
