// Copyright (c) 2026 Skywalkers Paragliding
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrtandempilot/skywalkers-hub/internal/models"
)

// bookingStatuses enumerates the valid booking states.
var bookingStatuses = map[string]bool{
	models.BookingPending:   true,
	models.BookingConfirmed: true,
	models.BookingCompleted: true,
	models.BookingCancelled: true,
}

// invoiceStatuses enumerates the valid invoice states.
var invoiceStatuses = map[string]bool{
	models.InvoiceDraft:   true,
	models.InvoiceSent:    true,
	models.InvoicePaid:    true,
	models.InvoiceOverdue: true,
}

// CRMStore holds the back-office business records: bookings, customers,
// pilots, invoices, and expenses. These are conventional table rows; the
// only invariants are the status enums and non-negative amounts.
type CRMStore struct {
	pool *pgxpool.Pool
}

// NewCRMStore creates the CRM store and ensures its tables exist.
func NewCRMStore(ctx context.Context, pool *pgxpool.Pool) (*CRMStore, error) {
	s := &CRMStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure CRM schema: %w", err)
	}
	slog.Info("CRM store initialised")
	return s, nil
}

func (s *CRMStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pilots (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL UNIQUE,
			phone      TEXT DEFAULT '',
			license_no TEXT DEFAULT '',
			is_active  BOOLEAN NOT NULL DEFAULT TRUE,
			photo_url  TEXT DEFAULT '',
			bio        TEXT DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS customers (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL UNIQUE,
			phone      TEXT DEFAULT '',
			country    TEXT DEFAULT '',
			notes      TEXT DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS bookings (
			id                BIGSERIAL PRIMARY KEY,
			customer_name     TEXT NOT NULL,
			customer_email    TEXT NOT NULL,
			customer_phone    TEXT DEFAULT '',
			flight_date       TIMESTAMPTZ NOT NULL,
			flight_type       TEXT NOT NULL,
			participants      INT NOT NULL DEFAULT 1,
			pilot_id          BIGINT REFERENCES pilots(id),
			amount            NUMERIC(10,2) NOT NULL DEFAULT 0,
			status            TEXT NOT NULL DEFAULT 'pending',
			notes             TEXT DEFAULT '',
			calendar_event_id TEXT DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS invoices (
			id          BIGSERIAL PRIMARY KEY,
			number      TEXT NOT NULL UNIQUE,
			customer_id BIGINT REFERENCES customers(id),
			booking_id  BIGINT REFERENCES bookings(id),
			amount      NUMERIC(10,2) NOT NULL,
			currency    TEXT NOT NULL DEFAULT 'EUR',
			status      TEXT NOT NULL DEFAULT 'draft',
			issued_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			due_at      TIMESTAMPTZ,
			paid_at     TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS expenses (
			id          BIGSERIAL PRIMARY KEY,
			category    TEXT NOT NULL,
			description TEXT DEFAULT '',
			amount      NUMERIC(10,2) NOT NULL,
			currency    TEXT NOT NULL DEFAULT 'EUR',
			incurred_at TIMESTAMPTZ NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(flight_date);
		CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);
	`)
	return err
}

// --- Pilots ---

// CreatePilot inserts a pilot record.
func (s *CRMStore) CreatePilot(ctx context.Context, p *models.Pilot) (*models.Pilot, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO pilots (name, email, phone, license_no, is_active, photo_url, bio)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, p.Name, p.Email, p.Phone, p.LicenseNo, p.IsActive, p.PhotoURL, p.Bio)

	created := *p
	if err := row.Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert pilot: %w", err)
	}
	return &created, nil
}

// UpdatePilot replaces a pilot's fields.
func (s *CRMStore) UpdatePilot(ctx context.Context, p *models.Pilot) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pilots
		SET name = $1, email = $2, phone = $3, license_no = $4,
		    is_active = $5, photo_url = $6, bio = $7, updated_at = NOW()
		WHERE id = $8
	`, p.Name, p.Email, p.Phone, p.LicenseNo, p.IsActive, p.PhotoURL, p.Bio, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pilot %d not found", p.ID)
	}
	return nil
}

// ListPilots returns all pilots, active first.
func (s *CRMStore) ListPilots(ctx context.Context) ([]models.Pilot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, phone, license_no, is_active, photo_url, bio, created_at, updated_at
		FROM pilots ORDER BY is_active DESC, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pilots []models.Pilot
	for rows.Next() {
		var p models.Pilot
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.LicenseNo,
			&p.IsActive, &p.PhotoURL, &p.Bio, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		pilots = append(pilots, p)
	}
	return pilots, rows.Err()
}

// --- Customers ---

// UpsertCustomer inserts or refreshes a customer keyed on email. Inbound
// messages create customer records opportunistically.
func (s *CRMStore) UpsertCustomer(ctx context.Context, c *models.Customer) (*models.Customer, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone, country, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			name       = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE customers.name END,
			phone      = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE customers.phone END,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, c.Name, c.Email, c.Phone, c.Country, c.Notes)

	stored := *c
	if err := row.Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	return &stored, nil
}

// ListCustomers returns all customers, newest first.
func (s *CRMStore) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, phone, country, notes, created_at, updated_at
		FROM customers ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Country,
			&c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// --- Bookings ---

// CreateBooking inserts a booking after validating status and amount.
func (s *CRMStore) CreateBooking(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	if b.Status == "" {
		b.Status = models.BookingPending
	}
	if !bookingStatuses[b.Status] {
		return nil, fmt.Errorf("invalid booking status %q", b.Status)
	}
	if b.Amount < 0 {
		return nil, fmt.Errorf("booking amount must be non-negative")
	}
	if b.Participants < 1 {
		b.Participants = 1
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO bookings
			(customer_name, customer_email, customer_phone, flight_date, flight_type,
			 participants, pilot_id, amount, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.FlightDate, b.FlightType,
		b.Participants, b.PilotID, b.Amount, b.Status, b.Notes)

	created := *b
	if err := row.Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return &created, nil
}

// UpdateBookingStatus moves a booking to a new state.
func (s *CRMStore) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	if !bookingStatuses[status] {
		return fmt.Errorf("invalid booking status %q", status)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %d not found", id)
	}
	return nil
}

// SetBookingCalendarEvent records the Google Calendar event id for a booking.
func (s *CRMStore) SetBookingCalendarEvent(ctx context.Context, id int64, eventID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bookings SET calendar_event_id = $1, updated_at = NOW() WHERE id = $2
	`, eventID, id)
	return err
}

// ListBookings returns bookings, soonest flight first.
func (s *CRMStore) ListBookings(ctx context.Context, limit int) ([]models.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, customer_name, customer_email, customer_phone, flight_date, flight_type,
		       participants, pilot_id, amount, status, notes, calendar_event_id,
		       created_at, updated_at
		FROM bookings ORDER BY flight_date LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.CustomerName, &b.CustomerEmail, &b.CustomerPhone,
			&b.FlightDate, &b.FlightType, &b.Participants, &b.PilotID, &b.Amount,
			&b.Status, &b.Notes, &b.CalendarEvent, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// --- Invoices ---

// CreateInvoice inserts an invoice after validating status and amount.
func (s *CRMStore) CreateInvoice(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	if inv.Status == "" {
		inv.Status = models.InvoiceDraft
	}
	if !invoiceStatuses[inv.Status] {
		return nil, fmt.Errorf("invalid invoice status %q", inv.Status)
	}
	if inv.Amount < 0 {
		return nil, fmt.Errorf("invoice amount must be non-negative")
	}
	if inv.Currency == "" {
		inv.Currency = "EUR"
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO invoices (number, customer_id, booking_id, amount, currency, status, issued_at, due_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), $8)
		RETURNING id, issued_at, created_at
	`, inv.Number, inv.CustomerID, inv.BookingID, inv.Amount, inv.Currency, inv.Status,
		nullableTime(inv.IssuedAt), inv.DueAt)

	created := *inv
	if err := row.Scan(&created.ID, &created.IssuedAt, &created.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}
	return &created, nil
}

// MarkInvoicePaid records payment on an invoice.
func (s *CRMStore) MarkInvoicePaid(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invoices SET status = 'paid', paid_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %d not found", id)
	}
	return nil
}

// ListInvoices returns invoices, newest first.
func (s *CRMStore) ListInvoices(ctx context.Context, limit int) ([]models.Invoice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, number, customer_id, booking_id, amount, currency, status,
		       issued_at, due_at, paid_at, created_at
		FROM invoices ORDER BY issued_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.BookingID,
			&inv.Amount, &inv.Currency, &inv.Status, &inv.IssuedAt, &inv.DueAt,
			&inv.PaidAt, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// --- Expenses ---

// CreateExpense inserts an expense record.
func (s *CRMStore) CreateExpense(ctx context.Context, e *models.Expense) (*models.Expense, error) {
	if e.Amount < 0 {
		return nil, fmt.Errorf("expense amount must be non-negative")
	}
	if e.Currency == "" {
		e.Currency = "EUR"
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO expenses (category, description, amount, currency, incurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, e.Category, e.Description, e.Amount, e.Currency, e.IncurredAt)

	created := *e
	if err := row.Scan(&created.ID, &created.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert expense: %w", err)
	}
	return &created, nil
}

// ListExpenses returns expenses, newest first.
func (s *CRMStore) ListExpenses(ctx context.Context, limit int) ([]models.Expense, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category, description, amount, currency, incurred_at, created_at
		FROM expenses ORDER BY incurred_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.ID, &e.Category, &e.Description, &e.Amount,
			&e.Currency, &e.IncurredAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// nullableTime maps the zero time to nil for COALESCE defaults.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
