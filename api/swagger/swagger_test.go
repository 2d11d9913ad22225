package swagger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestDocIsRegisteredAndValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc()
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	paths, ok := parsed["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/punches/{id}/decision")
	assert.Contains(t, paths, "/auth/verify-reset")
}
