package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	testUsername     = "testuser"
	testPassword     = "testpass"
	testPasswordHash = "$2a$14$6Gmhg85si2etd3K9oB8nYu1cxfbrdmhkg6wI6OXsa88IF4L2r/L9i" // testpass
	testAdmin        = &Admin{
		Username:     testUsername,
		PasswordHash: testPasswordHash,
	}
	testCredentials = Credentials{
		Username: testUsername,
		Password: testPassword,
	}
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

func TestAuthService_Login(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	authService := NewAuthService(testAdmin, time.Hour, db)
	require.NotNil(t, authService)
	assert.NotNil(t, authService.redisClient)
	assert.Equal(t, time.Hour, authService.ttl)

	testToken := "test_token"
	authService.RandStringFunc = func(s int) (string, error) {
		return testToken, nil
	}

	now := time.Now()
	sessionKey := sessionKeyPrefix + testToken
	mock.ExpectSet(sessionKey, now.Unix(), 0).SetVal(fmt.Sprintf("%d", now.Unix()))
	mock.ExpectSet(userKeyPrefix+testToken, testUsername, 0).SetVal(testUsername)
	mock.ExpectSAdd(tokensSetKey, testToken).SetVal(1)
	token, err := authService.Login(context.Background(), testCredentials, now)
	require.NoError(t, err)
	require.Equal(t, testToken, token)

	// test failed login with wrong password
	token, err = authService.Login(context.Background(), Credentials{
		Username: testUsername,
		Password: "invalid_pass",
	}, now)
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Empty(t, token)

	// test failed login with wrong username
	token, err = authService.Login(context.Background(), Credentials{
		Username: "other_user",
		Password: testPassword,
	}, now)
	assert.ErrorIs(t, err, ErrWrongUsername)
	assert.Empty(t, token)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_Logout(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	authService := NewAuthService(testAdmin, time.Hour, db)

	testToken := "test_token"
	sessionKey := sessionKeyPrefix + testToken
	createdAt := time.Now().Add(-time.Minute)

	mock.ExpectGet(sessionKey).SetVal(fmt.Sprintf("%d", createdAt.Unix()))
	mock.ExpectDel(sessionKey, userKeyPrefix+testToken).SetVal(2)
	mock.ExpectSRem(tokensSetKey, testToken).SetVal(1)

	loggedOut, err := authService.Logout(context.Background(), testToken)
	require.NoError(t, err)
	assert.True(t, loggedOut)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_ScanAndClean(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	authService := NewAuthService(testAdmin, time.Hour, db)

	freshToken := "fresh_token"
	staleToken := "stale_token"
	now := time.Now()
	staleCreatedAt := now.Add(-2 * time.Hour)

	mock.ExpectSMembers(tokensSetKey).SetVal([]string{freshToken, staleToken})
	mock.ExpectGet(sessionKeyPrefix + freshToken).SetVal(fmt.Sprintf("%d", now.Unix()))
	mock.ExpectGet(sessionKeyPrefix + staleToken).SetVal(fmt.Sprintf("%d", staleCreatedAt.Unix()))
	mock.ExpectDel(sessionKeyPrefix+staleToken, userKeyPrefix+staleToken).SetVal(2)
	mock.ExpectSRem(tokensSetKey, staleToken).SetVal(1)

	authService.ScanAndClean(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}
