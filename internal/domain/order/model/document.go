// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrBadDocument is wrapped by every document decoding failure.
var ErrBadDocument = errors.New("order: malformed document")

const dateLayout = "2006-01-02"

// document is the wire shape of an order as stored by the backend.
type document struct {
	ID                string        `json:"id,omitempty"`
	BuyerID           string        `json:"buyerId,omitempty"`
	SellerID          string        `json:"sellerId,omitempty"`
	OrderType         string        `json:"orderType"`
	PackageType       string        `json:"packageType,omitempty"`
	StatusProgress    string        `json:"statusProgress"`
	StartDate         *wireTime     `json:"startDate,omitempty"`
	EndDate           *wireTime     `json:"endDate,omitempty"`
	DailyDeliveryLogs []deliveryDoc `json:"dailyDeliveryLogs,omitempty"`
	SellerLocation    *LatLng       `json:"sellerLocation,omitempty"`
	BuyerLocation     *LatLng       `json:"buyerLocation,omitempty"`
	Rating            *int          `json:"rating,omitempty"`
	CreatedAt         *wireTime     `json:"createdAt,omitempty"`
}

type deliveryDoc struct {
	DeliveryDate  wireTime  `json:"deliveryDate"`
	DeliveryTime  string    `json:"deliveryTime,omitempty"`
	CompletedTime *wireTime `json:"completedTime,omitempty"`
}

// wireTime accepts plain dates, RFC3339 strings and {seconds,nanoseconds}
// timestamp objects.
type wireTime struct {
	time.Time
}

func (w *wireTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '{' {
		var ts struct {
			Seconds     int64 `json:"seconds"`
			Nanoseconds int64 `json:"nanoseconds"`
		}
		if err := json.Unmarshal(b, &ts); err != nil {
			return err
		}
		w.Time = time.Unix(ts.Seconds, ts.Nanoseconds).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			w.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}

func (w wireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Time.Format(time.RFC3339))
}

func timePtr(w *wireTime) *time.Time {
	if w == nil || w.Time.IsZero() {
		return nil
	}
	t := w.Time
	return &t
}

// DecodeOrder decodes a document snapshot. id wins over any id field in data.
// Enum fields are decoded once here; unknown spellings become the Unknown
// members instead of failing the whole snapshot.
func DecodeOrder(id string, data []byte) (Order, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	if id == "" {
		id = doc.ID
	}
	if id == "" {
		return Order{}, fmt.Errorf("%w: %v", ErrBadDocument, ErrMissingID)
	}

	o := Order{
		ID:             id,
		BuyerID:        doc.BuyerID,
		SellerID:       doc.SellerID,
		OrderType:      ParseOrderType(doc.OrderType),
		PackageType:    ParsePackageType(doc.PackageType),
		StatusProgress: ParseStatus(doc.StatusProgress),
		StartDate:      timePtr(doc.StartDate),
		EndDate:        timePtr(doc.EndDate),
		SellerLocation: doc.SellerLocation,
		BuyerLocation:  doc.BuyerLocation,
		Rating:         doc.Rating,
	}
	if doc.CreatedAt != nil {
		o.CreatedAt = doc.CreatedAt.Time
	}
	if len(doc.DailyDeliveryLogs) > 0 {
		o.DailyDeliveryLogs = make([]DailyDeliveryLog, 0, len(doc.DailyDeliveryLogs))
		for _, l := range doc.DailyDeliveryLogs {
			o.DailyDeliveryLogs = append(o.DailyDeliveryLogs, DailyDeliveryLog{
				DeliveryDate:  l.DeliveryDate.Time,
				DeliveryTime:  l.DeliveryTime,
				CompletedTime: timePtr(l.CompletedTime),
			})
		}
	}
	return o, nil
}

// EncodeOrder renders o in the backend wire shape. Used by writers and fixtures.
func EncodeOrder(o Order) ([]byte, error) {
	doc := document{
		ID:             o.ID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		OrderType:      string(o.OrderType),
		PackageType:    string(o.PackageType),
		StatusProgress: string(o.StatusProgress),
		SellerLocation: o.SellerLocation,
		BuyerLocation:  o.BuyerLocation,
		Rating:         o.Rating,
	}
	if o.StartDate != nil {
		doc.StartDate = &wireTime{*o.StartDate}
	}
	if o.EndDate != nil {
		doc.EndDate = &wireTime{*o.EndDate}
	}
	if !o.CreatedAt.IsZero() {
		doc.CreatedAt = &wireTime{o.CreatedAt}
	}
	for _, l := range o.DailyDeliveryLogs {
		d := deliveryDoc{DeliveryDate: wireTime{l.DeliveryDate}, DeliveryTime: l.DeliveryTime}
		if l.CompletedTime != nil {
			d.CompletedTime = &wireTime{*l.CompletedTime}
		}
		doc.DailyDeliveryLogs = append(doc.DailyDeliveryLogs, d)
	}
	return json.Marshal(doc)
}
