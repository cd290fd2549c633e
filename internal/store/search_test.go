package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchFilterWhereClause(t *testing.T) {
	t.Parallel()

	clause, args := SearchFilter{}.whereClause(2)
	require.Empty(t, clause)
	require.Empty(t, args)

	clause, args = SearchFilter{FactTypes: []string{"world"}, ExcludeObservations: true}.whereClause(2)
	require.Contains(t, clause, "fact_type = ANY($3)")
	require.Contains(t, clause, "fact_type != 'observation'")
	require.Len(t, args, 1)

	clause, args = SearchFilter{Tags: []string{"billing"}}.whereClause(2)
	require.Contains(t, clause, "tags && $3")
	require.Len(t, args, 1)
}

func TestPrefixColumns(t *testing.T) {
	t.Parallel()

	require.Equal(t, "u.id, u.bank_id", prefixColumns("u", "id, bank_id"))
}
