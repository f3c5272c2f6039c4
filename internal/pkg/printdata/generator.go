package printdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuelReschke/ArtFox/app/models"
)

var ErrNoItems = errors.New("order has no items to print")

var sheetHeader = []string{
	"order_id", "line", "product_id", "project_id", "format", "size", "quantity", "unit_price", "image_url",
	"ship_name", "ship_line1", "ship_line2", "ship_postal_code", "ship_city", "ship_country", "ship_email",
	"is_gift", "gift_recipient", "gift_message",
}

// Generator turns an order into a fulfillment sheet and uploads it.
type Generator struct {
	uploader Uploader
	now      func() time.Time
}

func NewGenerator(uploader Uploader) *Generator {
	return &Generator{uploader: uploader, now: time.Now}
}

// Generate builds the sheet for order and returns the uploaded URL.
func (g *Generator) Generate(ctx context.Context, order models.OrderPaymentStatus) (string, error) {
	sheet, err := BuildSheet(order)
	if err != nil {
		return "", err
	}

	at := g.now()
	if order.CreatedAt != nil {
		at = *order.CreatedAt
	}
	return g.uploader.Upload(ctx, ObjectKey(order.OrderID, at.UTC()), sheet, "text/csv")
}

// BuildSheet renders one CSV row per order item.
func BuildSheet(order models.OrderPaymentStatus) ([]byte, error) {
	if len(order.Items) == 0 {
		return nil, ErrNoItems
	}

	var addr models.ShippingAddress
	if order.ShippingAddress != nil {
		addr = *order.ShippingAddress
	}
	var gift models.GiftInfo
	if order.GiftInfo != nil {
		gift = *order.GiftInfo
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(sheetHeader); err != nil {
		return nil, err
	}
	for i, item := range order.Items {
		row := []string{
			order.OrderID,
			strconv.Itoa(i + 1),
			item.ProductID,
			item.ProjectID,
			item.Format,
			item.Size,
			strconv.Itoa(item.Quantity),
			strconv.FormatInt(item.UnitPrice, 10),
			item.ImageURL,
			addr.Name,
			addr.Line1,
			addr.Line2,
			addr.PostalCode,
			addr.City,
			addr.Country,
			addr.Email,
			strconv.FormatBool(gift.IsGift),
			gift.Recipient,
			gift.Message,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
