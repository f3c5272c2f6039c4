package printdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ArtFox/internal/pkg/orders"
)

type memoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memoryUploader) Upload(_ context.Context, key string, body []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = body
	return "https://cdn.example/" + key, nil
}

func printableOrder(id string) models.OrderPaymentStatus {
	return models.OrderPaymentStatus{
		OrderID:     id,
		UserID:      "user-1",
		TotalAmount: 7800,
		Items: []models.OrderItem{
			{ProductID: "poster", ProjectID: "proj-1", Format: "poster", Size: "A2", Quantity: 1, UnitPrice: 3900, ImageURL: "https://img/1.jpg"},
			{ProductID: "canvas", ProjectID: "proj-2", Format: "canvas", Size: "40x60", Quantity: 1, UnitPrice: 3900},
		},
		ShippingAddress: &models.ShippingAddress{Name: "Sam Doe", Line1: "Elm 5", PostalCode: "80331", City: "Munich", Country: "DE"},
		GiftInfo:        &models.GiftInfo{IsGift: true, Recipient: "Alex", Message: "Happy birthday, Alex!"},
	}
}

func TestBuildSheet(t *testing.T) {
	data, err := BuildSheet(printableOrder("order-1"))
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, sheetHeader, rows[0])
	assert.Equal(t, "order-1", rows[1][0])
	assert.Equal(t, "1", rows[1][1])
	assert.Equal(t, "poster", rows[1][2])
	assert.Equal(t, "3900", rows[1][7])
	assert.Equal(t, "Munich", rows[2][13])
	assert.Equal(t, "true", rows[2][16])
	assert.Equal(t, "Happy birthday, Alex!", rows[2][18])

	_, err = BuildSheet(models.OrderPaymentStatus{OrderID: "empty"})
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestObjectKeyAndURL(t *testing.T) {
	at := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	key := ObjectKey("order-9", at)
	assert.Equal(t, "print-data/2026/02/order-9.csv", key)

	assert.Equal(t, "https://cdn.example/"+key, (&Config{PublicBaseURL: "https://cdn.example"}).ObjectURL(key))
	assert.Equal(t, "https://s3.example/bucket/"+key, (&Config{EndpointURL: "https://s3.example/", BucketName: "bucket"}).ObjectURL(key))
	assert.Equal(t, "https://bucket.s3.eu-central-1.amazonaws.com/"+key, (&Config{BucketName: "bucket", Region: "eu-central-1"}).ObjectURL(key))
}

func TestLocalUploader(t *testing.T) {
	dir := t.TempDir()
	u := NewLocalUploader(dir)

	url, err := u.Upload(context.Background(), "print-data/2026/01/o1.csv", []byte("a,b\n"), "text/csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	data, err := os.ReadFile(filepath.Join(dir, "print-data", "2026", "01", "o1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

func waitForPrintStatus(t *testing.T, state *orders.State, orderID, want string) models.OrderPaymentStatus {
	t.Helper()
	var order models.OrderPaymentStatus
	require.Eventually(t, func() bool {
		order, _ = state.Get(orderID)
		return order.PrintDataStatus == want
	}, 5*time.Second, 10*time.Millisecond)
	return order
}

func newDispatcherFixture(t *testing.T, uploader Uploader) (*Dispatcher, *orders.State, *jobqueue.Queue) {
	t.Helper()
	state := orders.NewState(nil, 10, orders.EmptyDocument())
	queue := jobqueue.NewQueue(1)
	queue.SetRetryDelay(time.Millisecond)
	d := NewDispatcher(state, queue, NewGenerator(uploader))
	queue.Start()
	t.Cleanup(queue.Stop)
	return d, state, queue
}

func TestDispatcher_RecordsCompletedPrintData(t *testing.T) {
	uploader := &memoryUploader{}
	d, state, _ := newDispatcherFixture(t, uploader)
	_, err := state.Create(printableOrder("order-1"))
	require.NoError(t, err)

	require.NoError(t, d.Trigger(context.Background(), "order-1"))

	order := waitForPrintStatus(t, state, "order-1", models.PrintDataStatusCompleted)
	assert.True(t, strings.HasPrefix(order.PrintDataURL, "https://cdn.example/print-data/"))
	assert.True(t, strings.HasSuffix(order.PrintDataURL, "/order-1.csv"))
	assert.Empty(t, order.PrintDataError)
	assert.Len(t, uploader.objects, 1)
}

func TestDispatcher_RecordsFailure(t *testing.T) {
	d, state, _ := newDispatcherFixture(t, &memoryUploader{err: errors.New("access denied")})
	_, err := state.Create(printableOrder("order-1"))
	require.NoError(t, err)

	require.NoError(t, d.Trigger(context.Background(), "order-1"))

	order := waitForPrintStatus(t, state, "order-1", models.PrintDataStatusFailed)
	assert.Contains(t, order.PrintDataError, "access denied")
	assert.Empty(t, order.PrintDataURL)
}

func TestDispatcher_UnknownOrder(t *testing.T) {
	d, _, _ := newDispatcherFixture(t, &memoryUploader{})
	assert.ErrorIs(t, d.Trigger(context.Background(), "missing"), orders.ErrOrderNotFound)
}

func TestDispatcher_NoItemsFailsWithoutRetry(t *testing.T) {
	d, state, queue := newDispatcherFixture(t, &memoryUploader{})
	order := printableOrder("order-1")
	order.Items = nil
	_, err := state.Create(order)
	require.NoError(t, err)

	require.NoError(t, d.Trigger(context.Background(), "order-1"))

	failed := waitForPrintStatus(t, state, "order-1", models.PrintDataStatusFailed)
	assert.Contains(t, failed.PrintDataError, ErrNoItems.Error())
	assert.Zero(t, queue.GetJobStats()[jobqueue.JobStatusRetrying])
}

func TestDispatcher_ResumeRequeuesProcessingOrders(t *testing.T) {
	uploader := &memoryUploader{}
	d, state, _ := newDispatcherFixture(t, uploader)

	interrupted := printableOrder("order-1")
	interrupted.PrintDataStatus = models.PrintDataStatusProcessing
	_, err := state.Upsert(interrupted)
	require.NoError(t, err)
	done := printableOrder("order-2")
	done.PrintDataStatus = models.PrintDataStatusCompleted
	done.PrintDataURL = "https://cdn.example/print-data/old.csv"
	_, err = state.Upsert(done)
	require.NoError(t, err)

	n, err := d.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	order := waitForPrintStatus(t, state, "order-1", models.PrintDataStatusCompleted)
	assert.True(t, strings.HasSuffix(order.PrintDataURL, "/order-1.csv"))
	untouched, _ := state.Get("order-2")
	assert.Equal(t, "https://cdn.example/print-data/old.csv", untouched.PrintDataURL)
	uploader.mu.Lock()
	assert.Len(t, uploader.objects, 1)
	uploader.mu.Unlock()
}

func TestDispatcher_ResumeWithNothingPending(t *testing.T) {
	d, _, _ := newDispatcherFixture(t, &memoryUploader{})
	n, err := d.Resume(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
