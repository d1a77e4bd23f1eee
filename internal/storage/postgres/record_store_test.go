package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

func TestNewWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(nil, "", "")
	require.Error(t, err)
	_, err = NewWithPool(mock, "agents; DROP TABLE x", "")
	require.ErrorContains(t, err, "invalid table name")

	store, err := NewWithPool(mock, "", "")
	require.NoError(t, err)
	require.Equal(t, defaultTable, store.table)
	require.Equal(t, defaultRunsTable, store.runsTable)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "agents", "runs")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agents").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteUpsertsProfile(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "agent_profiles", "")
	require.NoError(t, err)

	rec := crawler.NewProfileRecord("https://www.example.com/bio/jane")
	rec.Name = "Jane Doe"
	rec.JobTitle = "Broker"
	rec.ContactDetails[crawler.ContactOffice] = "907-555-0100"
	rec.Languages = []string{"English", "Spanish"}
	rec.Offices = nil

	mock.ExpectExec("INSERT INTO agent_profiles").
		WithArgs(
			rec.ProfileURL,
			"Jane Doe",
			"Broker",
			"",
			"",
			[]byte(`{"Cell":"","Fax":"","Office":"907-555-0100"}`),
			[]byte(`{"facebook":"","instagram":"","linkedin":"","pinterest":"","twitter":"","youtube":""}`),
			[]byte(`[]`),
			[]byte(`["English","Spanish"]`),
			"",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Write(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRejectsMissingURLAndWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "", "")
	require.NoError(t, err)
	require.Error(t, store.Write(context.Background(), crawler.ProfileRecord{}))

	boom := errors.New("connection refused")
	mock.ExpectExec("INSERT INTO agent_profiles").
		WithArgs(
			"https://x.test/a",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnError(boom)
	err = store.Write(context.Background(), crawler.NewProfileRecord("https://x.test/a"))
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "", "")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	stats := crawler.RunStats{
		RunID:              "0190b8f4-0000-7000-8000-000000000000",
		StartedAt:          started,
		FinishedAt:         &finished,
		TotalCount:         25,
		PagesFetched:       3,
		ProfilesDiscovered: 25,
		RecordsEmitted:     24,
		ProfileFailures:    1,
		HaltReason:         crawler.HaltExhausted,
	}

	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(stats.RunID, started, &finished, 25, 3, 25, 24, 1, 0, "exhausted").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), stats))
	require.Error(t, store.RecordRun(context.Background(), crawler.RunStats{}))
	require.NoError(t, mock.ExpectationsWereMet())
}
