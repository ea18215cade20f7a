package entity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_BeforeSaveHashesPassword(t *testing.T) {
	user := &User{Email: "user@test.com", Password: "plain-secret"}

	require.NoError(t, user.BeforeSave(nil))

	assert.NotEqual(t, "plain-secret", user.Password)
	assert.True(t, strings.HasPrefix(user.Password, "$2"))
	assert.True(t, user.CheckPassword("plain-secret"))
	assert.False(t, user.CheckPassword("wrong"))
}

func TestUser_BeforeSaveDoesNotDoubleHash(t *testing.T) {
	user := &User{Email: "user@test.com", Password: "plain-secret"}
	require.NoError(t, user.BeforeSave(nil))
	hashed := user.Password

	require.NoError(t, user.BeforeSave(nil))
	assert.Equal(t, hashed, user.Password)
}
