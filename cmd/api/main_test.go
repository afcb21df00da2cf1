package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		policiesJSON = false
	})

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestPoliciesCommand(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "memory")

	t.Run("Table", func(t *testing.T) {
		out := executeCommand(t, "policies")

		assert.Contains(t, out, "POLICY")
		assert.Contains(t, out, "LOGIN_RATE_LIMIT_EXCEEDED")
		assert.Contains(t, out, "DELETION_ENDPOINT")
		assert.Contains(t, out, "/api/auth/delete-account")
	})

	t.Run("JSON", func(t *testing.T) {
		out := executeCommand(t, "policies", "--json")

		var body struct {
			Policies []map[string]interface{} `json:"policies"`
			Routes   struct {
				Global string `json:"global"`
			} `json:"routes"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &body))
		assert.Len(t, body.Policies, 12)
		assert.Equal(t, "GENERAL", body.Routes.Global)
	})
}

func TestVersionCommand(t *testing.T) {
	out := executeCommand(t, "version")
	assert.Equal(t, "woof-guard dev\n", out)
}
