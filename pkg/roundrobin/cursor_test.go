package roundrobin

import (
	"context"
	"errors"
	"testing"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestCursor(t *testing.T) (*Cursor, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return ProvideCursor(db, infra.NewLoggerFactory(zaptest.NewLogger(t))), mock
}

func TestNextReturnsStoredIndex(t *testing.T) {
	c, mock := newTestCursor(t)

	mock.ExpectEval(nextScript, []string{"distribution:rr:queue:2"}, 3).SetVal(int64(0))
	mock.ExpectEval(nextScript, []string{"distribution:rr:queue:2"}, 3).SetVal(int64(1))
	mock.ExpectEval(nextScript, []string{"distribution:rr:queue:2"}, 3).SetVal(int64(2))

	for want := 0; want < 3; want++ {
		got, err := c.Next(context.Background(), 2, 3)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextClampsOutOfRange(t *testing.T) {
	c, mock := newTestCursor(t)

	mock.ExpectEval(nextScript, []string{"distribution:rr:queue:2"}, 2).SetVal(int64(5))
	mock.ExpectEval(nextScript, []string{"distribution:rr:queue:2"}, 2).SetVal(int64(-1))

	for i := 0; i < 2; i++ {
		got, err := c.Next(context.Background(), 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 0, got)
	}
}

func TestNextWithoutEligible(t *testing.T) {
	c, mock := newTestCursor(t)

	_, err := c.Next(context.Background(), 2, 0)
	assert.ErrorIs(t, err, ErrNoEligible)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextStoreError(t *testing.T) {
	c, mock := newTestCursor(t)

	mock.ExpectEval(nextScript, []string{"distribution:rr:queue:2"}, 3).SetErr(errors.New("timeout"))

	_, err := c.Next(context.Background(), 2, 3)
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	c, mock := newTestCursor(t)

	mock.ExpectDel("distribution:rr:queue:2").SetVal(1)

	require.NoError(t, c.Reset(context.Background(), 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}
