package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odvcencio/leadsplit/pkg/bus"
	"github.com/odvcencio/leadsplit/pkg/distribute"
	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
	"github.com/odvcencio/leadsplit/pkg/ingest"
	"github.com/odvcencio/leadsplit/pkg/storage"
)

const sampleCSV = "FirstName,Phone,Notes\n" +
	"Alice,555-0100,VIP\n" +
	"Bob,555-0101,\n" +
	",555-0102,Missing name\n" +
	"Carol,555-0103,Follow up\n"

type fixture struct {
	store    *storage.Store
	uploader storage.Uploader
}

func newFixture(t *testing.T, agentNames ...string) *fixture {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "dispatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	user, err := store.CreateUser(ctx, "ops@example.com", "hash", "")
	require.NoError(t, err)

	for _, name := range agentNames {
		_, err := store.CreateAgent(ctx, storage.NewAgent{
			Name:         name,
			Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
			Mobile:       "555",
			PasswordHash: "hash",
		})
		require.NoError(t, err)
		// Distinct creation times keep newest-first ordering stable.
		time.Sleep(2 * time.Millisecond)
	}
	return &fixture{store: store, uploader: storage.Uploader{ID: user.ID, Email: user.Email}}
}

func TestUpload_SampleFile(t *testing.T) {
	fx := newFixture(t, "Agent B", "Agent A")
	svc := NewService(fx.store)

	d, err := svc.Upload(context.Background(), Upload{
		FileName:   "leads.csv",
		Body:       strings.NewReader(sampleCSV),
		UploadedBy: fx.uploader,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, 3, d.TotalRecords)
	assert.Len(t, d.PlanDigest, 64)
	require.Len(t, d.Shares, 2)
	// Newest agent first.
	assert.Equal(t, "Agent A", d.Shares[0].AgentName)
	assert.Equal(t, []ingest.Record{
		{FirstName: "Alice", Phone: "555-0100", Notes: "VIP"},
		{FirstName: "Bob", Phone: "555-0101"},
	}, d.Shares[0].Records)
	assert.Equal(t, "Agent B", d.Shares[1].AgentName)
	assert.Equal(t, []ingest.Record{
		{FirstName: "Carol", Phone: "555-0103", Notes: "Follow up"},
	}, d.Shares[1].Records)

	stored, err := fx.store.GetDistribution(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Shares, stored.Shares)
	assert.Equal(t, "ops@example.com", stored.UploadedBy.Email)
}

func TestUpload_DigestMatchesPlan(t *testing.T) {
	fx := newFixture(t, "Solo")
	svc := NewService(fx.store)

	d, err := svc.Upload(context.Background(), Upload{FileName: "leads.csv", Body: strings.NewReader(sampleCSV), UploadedBy: fx.uploader})
	require.NoError(t, err)

	records, err := ingest.Parse(strings.NewReader(sampleCSV), ingest.FormatDelimitedText)
	require.NoError(t, err)
	plan, err := distribute.Distribute(records, []distribute.AgentRef{{ID: d.Shares[0].AgentID, Name: "Solo"}})
	require.NoError(t, err)
	want, err := plan.Digest()
	require.NoError(t, err)
	assert.Equal(t, want, d.PlanDigest)
}

func TestUpload_RosterCap(t *testing.T) {
	fx := newFixture(t, "a1", "a2", "a3", "a4", "a5", "a6", "a7")

	t.Run("default cap", func(t *testing.T) {
		d, err := NewService(fx.store).Upload(context.Background(), Upload{FileName: "leads.csv", Body: strings.NewReader(sampleCSV), UploadedBy: fx.uploader})
		require.NoError(t, err)
		require.Len(t, d.Shares, DefaultMaxAgents)
		assert.Equal(t, "a7", d.Shares[0].AgentName)
		assert.Equal(t, "a3", d.Shares[4].AgentName)
		assert.Empty(t, d.Shares[4].Records)
	})

	t.Run("configured cap", func(t *testing.T) {
		d, err := NewService(fx.store, WithMaxAgents(2)).Upload(context.Background(), Upload{FileName: "leads.csv", Body: strings.NewReader(sampleCSV), UploadedBy: fx.uploader})
		require.NoError(t, err)
		require.Len(t, d.Shares, 2)
		assert.Len(t, d.Shares[0].Records, 2)
		assert.Len(t, d.Shares[1].Records, 1)
	})
}

func TestUpload_Spreadsheet(t *testing.T) {
	fx := newFixture(t, "Agent A")

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"First Name", "Mobile"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Dee", "555-0104"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	d, err := NewService(fx.store).Upload(context.Background(), Upload{FileName: "Leads.XLSX", Body: buf, UploadedBy: fx.uploader})
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalRecords)
	assert.Equal(t, "Dee", d.Shares[0].Records[0].FirstName)
}

func TestUpload_LegacySpreadsheet(t *testing.T) {
	fx := newFixture(t, "Agent A", "Agent B")
	data, err := os.ReadFile(filepath.Join("..", "ingest", "testdata", "leads.xls"))
	require.NoError(t, err)

	d, err := NewService(fx.store).Upload(context.Background(), Upload{FileName: "leads.xls", Body: bytes.NewReader(data), UploadedBy: fx.uploader})
	require.NoError(t, err)
	assert.Equal(t, 3, d.TotalRecords)
	require.Len(t, d.Shares, 2)
	assert.Equal(t, "Agent B", d.Shares[0].AgentName)
	assert.Equal(t, []string{"Alice", "Bob"}, firstNames(d.Shares[0].Records))
	assert.Equal(t, []string{"Carol"}, firstNames(d.Shares[1].Records))
}

func firstNames(records []ingest.Record) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.FirstName
	}
	return names
}

func TestUpload_Rejections(t *testing.T) {
	fx := newFixture(t, "Agent A")
	svc := NewService(fx.store)
	ctx := context.Background()

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := svc.Upload(ctx, Upload{FileName: "leads.txt", Body: strings.NewReader(sampleCSV), UploadedBy: fx.uploader})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnsupportedFormat))
	})

	t.Run("no usable rows", func(t *testing.T) {
		_, err := svc.Upload(ctx, Upload{FileName: "leads.csv", Body: strings.NewReader("Email,Company\na@b.c,Acme\n"), UploadedBy: fx.uploader})
		require.Error(t, err)
		structured, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeNoUsableRows, structured.Code)
		assert.Equal(t, msgNoUsableRows, structured.Public())
	})

	t.Run("parse fault", func(t *testing.T) {
		_, err := svc.Upload(ctx, Upload{FileName: "leads.xlsx", Body: strings.NewReader("not a zip"), UploadedBy: fx.uploader})
		assert.ErrorIs(t, err, ingest.ErrParse)
	})

	list, err := fx.store.ListDistributions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpload_NoAgents(t *testing.T) {
	fx := newFixture(t)
	_, err := NewService(fx.store).Upload(context.Background(), Upload{FileName: "leads.csv", Body: strings.NewReader(sampleCSV), UploadedBy: fx.uploader})
	require.Error(t, err)
	assert.ErrorIs(t, err, distribute.ErrNoAgents)

	structured, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "No active agents found. Please create agents first.", structured.Public())
}

func TestUpload_InactiveAgentsExcluded(t *testing.T) {
	fx := newFixture(t, "Agent A")
	ctx := context.Background()
	agents, err := fx.store.ListAgents(ctx)
	require.NoError(t, err)
	off := false
	_, err = fx.store.UpdateAgent(ctx, agents[0].ID, storage.AgentUpdate{IsActive: &off})
	require.NoError(t, err)

	_, err = NewService(fx.store).Upload(ctx, Upload{FileName: "leads.csv", Body: strings.NewReader(sampleCSV), UploadedBy: fx.uploader})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNoAgents))
}

func TestUpload_PublishesEvent(t *testing.T) {
	fx := newFixture(t, "Agent B", "Agent A")
	mem := bus.NewMemoryBus()
	defer mem.Close()

	events := make(chan bus.DistributionCreated, 1)
	_, err := mem.Subscribe(context.Background(), bus.SubjectDistributionCreated, func(msg *bus.Message) {
		if ev, err := bus.DecodeDistributionCreated(msg); err == nil {
			events <- ev
		}
	})
	require.NoError(t, err)

	d, err := NewService(fx.store, WithBus(mem)).Upload(context.Background(), Upload{FileName: "leads.csv", Body: strings.NewReader(sampleCSV), UploadedBy: fx.uploader})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, d.ID, ev.DistributionID)
		assert.Equal(t, 3, ev.TotalRecords)
		assert.Equal(t, d.PlanDigest, ev.PlanDigest)
		assert.Equal(t, []bus.AgentAssignment{
			{AgentID: d.Shares[0].AgentID, AgentName: "Agent A", Records: 2},
			{AgentID: d.Shares[1].AgentID, AgentName: "Agent B", Records: 1},
		}, ev.Assignments)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for distribution event")
	}
}

func TestUpload_ClosedBusDoesNotFailUpload(t *testing.T) {
	fx := newFixture(t, "Agent A")
	mem := bus.NewMemoryBus()
	require.NoError(t, mem.Close())

	d, err := NewService(fx.store, WithBus(mem)).Upload(context.Background(), Upload{FileName: "leads.csv", Body: strings.NewReader(sampleCSV), UploadedBy: fx.uploader})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
}

type failingStore struct {
	listErr error
	saveErr error
}

func (f *failingStore) ListEligibleAgents(context.Context, int) ([]storage.Agent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []storage.Agent{{ID: "A", Name: "Agent A", IsActive: true}}, nil
}

func (f *failingStore) SaveDistribution(context.Context, *storage.Distribution) error {
	return f.saveErr
}

func TestUpload_StoreFailures(t *testing.T) {
	cause := errors.New("disk full")

	t.Run("roster read", func(t *testing.T) {
		_, err := NewService(&failingStore{listErr: cause}).Upload(context.Background(), Upload{FileName: "leads.csv", Body: strings.NewReader(sampleCSV)})
		assert.ErrorIs(t, err, cause)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageRead))
	})

	t.Run("save", func(t *testing.T) {
		_, err := NewService(&failingStore{saveErr: cause}).Upload(context.Background(), Upload{FileName: "leads.csv", Body: strings.NewReader(sampleCSV)})
		assert.ErrorIs(t, err, cause)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageWrite))
	})
}
