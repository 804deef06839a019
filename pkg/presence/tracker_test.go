package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestTracker(t *testing.T) (*Tracker, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewTracker(db, time.Hour, 100, infra.NewLoggerFactory(zaptest.NewLogger(t))), mock
}

func TestConnectThenDisconnect(t *testing.T) {
	tracker, mock := newTestTracker(t)
	ctx := context.Background()

	mock.ExpectEval(markConnectedScript, []string{"presence:conns:7", "presence:online:7"}, "conn-1", 3600).SetVal(int64(1))
	mock.ExpectExists("presence:online:7").SetVal(1)
	mock.ExpectExists("presence:online:7").SetVal(1)
	mock.ExpectEval(markDisconnectedScript, []string{"presence:conns:7", "presence:online:7"}, "conn-1").SetVal(int64(0))
	mock.ExpectExists("presence:online:7").SetVal(0)
	mock.ExpectExists("presence:online:7").SetVal(0)

	require.NoError(t, tracker.MarkConnected(ctx, 7, "conn-1"))
	for i := 0; i < 2; i++ {
		online, err := tracker.IsOnline(ctx, 7)
		require.NoError(t, err)
		assert.True(t, online)
	}

	remaining, err := tracker.MarkDisconnected(ctx, 7, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
	for i := 0; i < 2; i++ {
		online, err := tracker.IsOnline(ctx, 7)
		require.NoError(t, err)
		assert.False(t, online)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSecondConnectionKeepsAgentOnline(t *testing.T) {
	tracker, mock := newTestTracker(t)
	ctx := context.Background()

	mock.ExpectEval(markConnectedScript, []string{"presence:conns:7", "presence:online:7"}, "tab-1", 3600).SetVal(int64(1))
	mock.ExpectEval(markConnectedScript, []string{"presence:conns:7", "presence:online:7"}, "tab-2", 3600).SetVal(int64(2))
	mock.ExpectEval(markDisconnectedScript, []string{"presence:conns:7", "presence:online:7"}, "tab-1").SetVal(int64(1))
	mock.ExpectExists("presence:online:7").SetVal(1)

	require.NoError(t, tracker.MarkConnected(ctx, 7, "tab-1"))
	require.NoError(t, tracker.MarkConnected(ctx, 7, "tab-2"))

	remaining, err := tracker.MarkDisconnected(ctx, 7, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	online, err := tracker.IsOnline(ctx, 7)
	require.NoError(t, err)
	assert.True(t, online)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOnlineWalksCursor(t *testing.T) {
	tracker, mock := newTestTracker(t)

	mock.ExpectScan(0, "presence:online:*", 100).SetVal([]string{"presence:online:1", "presence:online:2"}, 42)
	mock.ExpectScan(42, "presence:online:*", 100).SetVal([]string{"presence:online:bogus", "presence:online:3"}, 0)

	online, err := tracker.ListOnline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}, 3: {}}, online)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOnlineError(t *testing.T) {
	tracker, mock := newTestTracker(t)

	mock.ExpectScan(0, "presence:online:*", 100).SetErr(errors.New("connection reset"))

	_, err := tracker.ListOnline(context.Background())
	assert.Error(t, err)
}

func TestHeartbeat(t *testing.T) {
	tracker, mock := newTestTracker(t)
	ctx := context.Background()

	mock.ExpectExpire("presence:online:7", time.Hour).SetVal(true)
	mock.ExpectExpire("presence:conns:7", time.Hour).SetVal(true)
	mock.ExpectExpire("presence:online:8", time.Hour).SetVal(false)

	ok, err := tracker.Heartbeat(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tracker.Heartbeat(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForceOffline(t *testing.T) {
	tracker, mock := newTestTracker(t)

	mock.ExpectDel("presence:online:7", "presence:conns:7").SetVal(2)

	require.NoError(t, tracker.ForceOffline(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}
