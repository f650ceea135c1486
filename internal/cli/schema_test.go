package cli

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/fiscalbox/fiscalbox/internal/schema"
)

func TestSchemaDumpGolden(t *testing.T) {
	reg, err := schema.Load()
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "schema_dump", []byte(DumpRegistryText(reg)))
}
