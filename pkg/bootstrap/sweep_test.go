package bootstrap

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/orgs"
)

type recordingNotifier struct {
	calls []map[string]string
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, template string, properties map[string]string) error {
	if n.err != nil {
		return n.err
	}
	n.calls = append(n.calls, properties)
	return nil
}

func quietLogrus() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func undispatchedRows(ids ...string) *sqlmock.Rows {
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "token", "email", "invited_by", "organization_id", "role_name",
		"dispatched_at", "accepted_at", "accepted_by", "created_at", "updated_at"})
	for _, id := range ids {
		rows.AddRow(id, "tok-"+id, "who@example.com", "u-1", "org-1", "Monitor", nil, nil, nil, now, now)
	}
	return rows
}

func TestSweep_RunOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	notifier := &recordingNotifier{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	sweep := NewSweep(orgs.NewInvitationStore(db), orgs.NewStore(db), notifier, quietLogrus(), metrics, 10)

	now := time.Now()
	mock.ExpectQuery(`FROM invitations\s+WHERE dispatched_at IS NULL AND accepted_at IS NULL`).
		WithArgs(10).
		WillReturnRows(undispatchedRows("inv-1", "inv-2"))
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`FROM organizations WHERE id = \$1`).
			WithArgs("org-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "description", "visibility", "created_at", "updated_at"}).
				AddRow("org-1", "u-1", "Acme", "", "APPLY", now, now))
		mock.ExpectExec(`UPDATE invitations SET dispatched_at = \$1`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	sweep.RunOnce(context.Background())

	require.Len(t, notifier.calls, 2)
	assert.Equal(t, "Acme", notifier.calls[0]["organization"])
	assert.Equal(t, "tok-inv-1", notifier.calls[0]["token"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweep_FailedDispatchLeavesStampUnset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	notifier := &recordingNotifier{err: errors.New("transport down")}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	sweep := NewSweep(orgs.NewInvitationStore(db), orgs.NewStore(db), notifier, quietLogrus(), metrics, 10)

	now := time.Now()
	mock.ExpectQuery(`FROM invitations\s+WHERE dispatched_at IS NULL AND accepted_at IS NULL`).
		WithArgs(10).
		WillReturnRows(undispatchedRows("inv-1"))
	mock.ExpectQuery(`FROM organizations WHERE id = \$1`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "description", "visibility", "created_at", "updated_at"}).
			AddRow("org-1", "u-1", "Acme", "", "APPLY", now, now))

	// No UPDATE expectation: a failed dispatch stays eligible for the
	// next sweep.
	sweep.RunOnce(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweep_EmptyBatchIsQuiet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	notifier := &recordingNotifier{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	sweep := NewSweep(orgs.NewInvitationStore(db), orgs.NewStore(db), notifier, quietLogrus(), metrics, 10)

	mock.ExpectQuery(`FROM invitations\s+WHERE dispatched_at IS NULL AND accepted_at IS NULL`).
		WithArgs(10).
		WillReturnRows(undispatchedRows())

	sweep.RunOnce(context.Background())
	assert.Empty(t, notifier.calls)
}
