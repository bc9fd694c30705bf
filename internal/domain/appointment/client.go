package appointment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Source provides read access to the scheduling system.
type Source interface {
	FetchDay(ctx context.Context, day time.Time, filter Filter) ([]Record, error)
}

// Client talks to the scheduling system's frontend search API.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: http, logger: logger}
}

// appointmentSearchResponse mirrors the wire shape of the search
// endpoint. Identifier fields arrive as strings and are parsed on
// conversion.
type appointmentSearchResponse struct {
	Data []wireAppointment `json:"data"`
}

type wireAppointment struct {
	AppointmentID     int64   `json:"appointment_id"`
	Date              string  `json:"date"`
	Time              string  `json:"time"`
	Status            string  `json:"status"`
	AppointmentTypeID int64   `json:"appointment_type_id"`
	DoctorID          int64   `json:"doctor_id"`
	RoomID            int64   `json:"room_id"`
	PIZ               *string `json:"piz"`
	InsuranceNumber   *string `json:"insurance_number"`
	FirstName         string  `json:"first_name"`
	LastName          string  `json:"last_name"`
	DateOfBirth       *string `json:"date_of_birth"`
	Notes             string  `json:"notes"`
}

const dateLayout = "2006-01-02"

// FetchDay queries the source for one day's appointments, applying the
// filter as query parameters. The date-based status policy is applied
// by the caller, not here.
func (c *Client) FetchDay(ctx context.Context, day time.Time, filter Filter) ([]Record, error) {
	dateStr := day.Format(dateLayout)

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("from_date", dateStr).
		SetQueryParam("to_date", dateStr).
		SetResult(&appointmentSearchResponse{})

	if filter.KindID != nil {
		req.SetQueryParam("appointment_type_id", strconv.FormatInt(*filter.KindID, 10))
	}
	if filter.PractitionerID != nil {
		req.SetQueryParam("doctor_id", strconv.FormatInt(*filter.PractitionerID, 10))
	}
	if filter.LocationID != nil {
		req.SetQueryParam("room_id", strconv.FormatInt(*filter.LocationID, 10))
	}
	if filter.StatusOverride != nil {
		req.SetQueryParam("status", string(*filter.StatusOverride))
	}

	resp, err := req.Get("/appointment_search/")
	if err != nil {
		return nil, fmt.Errorf("appointment search for %s: %w", dateStr, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("appointment search for %s: status %d", dateStr, resp.StatusCode())
	}

	body, ok := resp.Result().(*appointmentSearchResponse)
	if !ok || body == nil {
		return nil, fmt.Errorf("appointment search for %s: unexpected response shape", dateStr)
	}

	records := make([]Record, 0, len(body.Data))
	for _, w := range body.Data {
		r, err := w.toRecord()
		if err != nil {
			c.logger.Warn().Err(err).Int64("appointment_id", w.AppointmentID).Msg("skipping malformed appointment")
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (w wireAppointment) toRecord() (Record, error) {
	date, err := time.Parse(dateLayout, w.Date)
	if err != nil {
		return Record{}, fmt.Errorf("parse date %q: %w", w.Date, err)
	}

	r := Record{
		ID:             w.AppointmentID,
		Date:           date,
		Time:           w.Time,
		Status:         Status(w.Status),
		KindID:         w.AppointmentTypeID,
		PractitionerID: w.DoctorID,
		LocationID:     w.RoomID,
		FirstName:      w.FirstName,
		LastName:       w.LastName,
		Notes:          w.Notes,
	}

	if w.PIZ != nil && *w.PIZ != "" {
		id, err := strconv.ParseInt(*w.PIZ, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("parse external patient id %q: %w", *w.PIZ, err)
		}
		r.ExternalPatientID = &id
	}
	if w.InsuranceNumber != nil && *w.InsuranceNumber != "" {
		r.InsuranceNumber = w.InsuranceNumber
	}
	if w.DateOfBirth != nil && *w.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, *w.DateOfBirth)
		if err != nil {
			return Record{}, fmt.Errorf("parse date of birth %q: %w", *w.DateOfBirth, err)
		}
		r.BirthDate = &dob
	}

	return r, nil
}
