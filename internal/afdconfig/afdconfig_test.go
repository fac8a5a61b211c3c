package afdconfig

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAFDMonDBDefaults(t *testing.T) {
	data := []byte("# comment\nafd1\n")
	entries, err := ParseAFDMonDB(data, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "afd1", entries[0].Alias)
	assert.Equal(t, "afd1", entries[0].Hostname)
	assert.Equal(t, DefaultPort, entries[0].Port)
	assert.Equal(t, DefaultPollInterval, entries[0].PollInterval)
}

func TestParseAFDMonDBFullLine(t *testing.T) {
	data := []byte("afd2 remote.example.com 4712 30 localuser->remoteuser\n")
	entries, err := ParseAFDMonDB(data, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "afd2", e.Alias)
	assert.Equal(t, "remote.example.com", e.Hostname)
	assert.Equal(t, 4712, e.Port)
	assert.Equal(t, 30, e.PollInterval)
	assert.Equal(t, "localuser", e.ConvertUser)
	assert.Equal(t, "remoteuser", e.RemoteUser)
}

func TestParseAFDMonDBInvalidPortFallsBackToDefault(t *testing.T) {
	data := []byte("afd3 host abc 30\n")
	entries, err := ParseAFDMonDB(data, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultPort, entries[0].Port)
}

func TestParseAFDMonDBTruncatesAlias(t *testing.T) {
	data := []byte("averyverylongaliasname host\n")
	entries, err := ParseAFDMonDB(data, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Alias, maxAliasLength)
}

func TestParsePermissionsAllExpandsEveryToken(t *testing.T) {
	data := []byte("alice all\nbob mon_ctrl retry\n")
	perms := ParsePermissions(data)

	aliceSet := perms.Lookup("alice")
	assert.True(t, aliceSet.Has(PermMonCtrl))
	assert.True(t, aliceSet.Has(PermMafdCmd))
	assert.True(t, aliceSet.Has(PermRetry))

	bobSet := perms.Lookup("bob")
	assert.True(t, bobSet.Has(PermMonCtrl))
	assert.True(t, bobSet.Has(PermRetry))
	assert.False(t, bobSet.Has(PermMafdCmd))
}

func TestParsePermissionsUnknownUserHasNoPermissions(t *testing.T) {
	perms := ParsePermissions([]byte("alice all\n"))
	set := perms.Lookup("carol")
	assert.False(t, set.Has(PermMonCtrl))
}
