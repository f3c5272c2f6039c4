package printdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ArtFox/internal/pkg/orders"
)

const payloadURLKey = "print_data_url"

// OrderSource reads orders and records print data outcomes.
type OrderSource interface {
	Get(orderID string) (models.OrderPaymentStatus, bool)
	ListByPrintDataStatus(status string) []models.OrderPaymentStatus
	SetPrintData(orderID, status, url, errMsg string) error
}

// JobQueue is the part of jobqueue.Queue the dispatcher uses.
type JobQueue interface {
	Register(jobType jobqueue.JobType, h jobqueue.Handler)
	Enqueue(jobType jobqueue.JobType, payload map[string]interface{}, onComplete jobqueue.CompletionFunc) (*jobqueue.Job, error)
}

// Dispatcher runs print data generation in the background and records the
// outcome on the order.
type Dispatcher struct {
	orders    OrderSource
	queue     JobQueue
	generator *Generator
}

// NewDispatcher registers the print data handler on queue.
func NewDispatcher(store OrderSource, queue JobQueue, generator *Generator) *Dispatcher {
	d := &Dispatcher{orders: store, queue: queue, generator: generator}
	queue.Register(jobqueue.JobTypePrintData, d.handle)
	return d
}

// Trigger marks the order as processing and enqueues generation. It returns
// once the job is queued.
func (d *Dispatcher) Trigger(_ context.Context, orderID string) error {
	order, ok := d.orders.Get(orderID)
	if !ok {
		return orders.ErrOrderNotFound
	}
	if err := d.orders.SetPrintData(orderID, models.PrintDataStatusProcessing, "", ""); err != nil {
		return err
	}

	return d.enqueue(order)
}

// Resume re-enqueues orders left in processing, which happens when the
// process stopped before their job finished. It returns the number of jobs
// queued.
func (d *Dispatcher) Resume(_ context.Context) (int, error) {
	var queued int
	var errs []error
	for _, order := range d.orders.ListByPrintDataStatus(models.PrintDataStatusProcessing) {
		if err := d.enqueue(order); err != nil {
			errs = append(errs, err)
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}

func (d *Dispatcher) enqueue(order models.OrderPaymentStatus) error {
	payload := jobqueue.PrintDataJobPayload{OrderID: order.OrderID, UserID: order.UserID}
	if _, err := d.queue.Enqueue(jobqueue.JobTypePrintData, payload.ToMap(), d.complete); err != nil {
		_ = d.orders.SetPrintData(order.OrderID, models.PrintDataStatusFailed, "", err.Error())
		return fmt.Errorf("failed to enqueue print data for order %s: %w", order.OrderID, err)
	}
	log.Infof("[PrintData] Queued print data for order %s", order.OrderID)
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.PrintDataJobPayloadFromMap(job.Payload)
	if err != nil {
		return jobqueue.Permanent(fmt.Errorf("invalid print data payload: %w", err))
	}
	order, ok := d.orders.Get(payload.OrderID)
	if !ok {
		return jobqueue.Permanent(orders.ErrOrderNotFound)
	}

	url, err := d.generator.Generate(ctx, order)
	if errors.Is(err, ErrNoItems) {
		return jobqueue.Permanent(err)
	}
	if err != nil {
		return err
	}
	job.Payload[payloadURLKey] = url
	return nil
}

func (d *Dispatcher) complete(job jobqueue.Job, err error) {
	payload, perr := jobqueue.PrintDataJobPayloadFromMap(job.Payload)
	if perr != nil {
		log.Errorf("[PrintData] Job %s has an unreadable payload: %v", job.ID, perr)
		return
	}

	if err != nil {
		log.Errorf("[PrintData] Print data for order %s failed: %v", payload.OrderID, err)
		if serr := d.orders.SetPrintData(payload.OrderID, models.PrintDataStatusFailed, "", err.Error()); serr != nil {
			log.Errorf("[PrintData] Failed to record failure for order %s: %v", payload.OrderID, serr)
		}
		return
	}

	url, _ := job.Payload[payloadURLKey].(string)
	if serr := d.orders.SetPrintData(payload.OrderID, models.PrintDataStatusCompleted, url, ""); serr != nil {
		log.Errorf("[PrintData] Failed to record print data for order %s: %v", payload.OrderID, serr)
		return
	}
	log.Infof("[PrintData] Print data for order %s ready at %s", payload.OrderID, url)
}
