package billing

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
)

const dateLayout = "2006-01-02"

// Bounds of the amounts an invoice accepts. Within them a line amount cannot overflow.
const (
	MaxQuantity = 100_000
	MaxAmount   = 1_000_000_000_000
)

type Frequency string

const (
	FrequencyOnce      Frequency = "unique"
	FrequencyMonthly   Frequency = "mensuel"
	FrequencyQuarterly Frequency = "trimestriel"
	FrequencyYearly    Frequency = "annuel"
)

type FeeType struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"-" db:"tenant_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Amount      int64     `json:"amount" db:"amount"`
	Frequency   Frequency `json:"frequency" db:"frequency"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type FeeTypeInput struct {
	Name        string    `json:"name" validate:"required,notblank,max=200"`
	Description string    `json:"description" validate:"max=1000"`
	Amount      int64     `json:"amount" validate:"gte=0,lte=1000000000000"`
	Frequency   Frequency `json:"frequency" validate:"required,oneof=unique mensuel trimestriel annuel"`
}

func (fi *FeeTypeInput) Clean() {
	fi.Name = core.CleanString(fi.Name)
	fi.Description = core.CleanString(fi.Description)
}

type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "brouillon"
	InvoiceSent    InvoiceStatus = "envoyee"
	InvoicePaid    InvoiceStatus = "payee"
	InvoicePartial InvoiceStatus = "partielle"
	InvoiceUnpaid  InvoiceStatus = "impayee"
)

// InvoiceStatuses lists the statuses in display order.
var InvoiceStatuses = []InvoiceStatus{InvoiceDraft, InvoiceSent, InvoicePartial, InvoicePaid, InvoiceUnpaid}

type Invoice struct {
	ID         string        `json:"id" db:"id"`
	TenantID   string        `json:"-" db:"tenant_id"`
	Number     string        `json:"number" db:"number"`
	StudentID  string        `json:"student_id" db:"student_id"`
	IssueDate  time.Time     `json:"issue_date" db:"issue_date"`
	DueDate    null.Time     `json:"due_date" db:"due_date"`
	Status     InvoiceStatus `json:"status" db:"status"`
	Notes      string        `json:"notes" db:"notes"`
	Total      int64         `json:"total" db:"total"`
	CreatedBy  string        `json:"created_by" db:"created_by"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" db:"updated_at"`
	AmountPaid int64         `json:"amount_paid" db:"amount_paid"` // derived from payments

	Lines []InvoiceLine `json:"lines,omitempty" db:"-"`
}

func (inv Invoice) Balance() int64 {
	return inv.Total - inv.AmountPaid
}

// InvoiceLine amounts are whole currency units.
type InvoiceLine struct {
	ID          string      `json:"id" db:"id"`
	TenantID    string      `json:"-" db:"tenant_id"`
	InvoiceID   string      `json:"-" db:"invoice_id"`
	FeeTypeID   null.String `json:"fee_type_id" db:"fee_type_id"`
	Description string      `json:"description" db:"description"`
	Quantity    int64       `json:"quantity" db:"quantity"`
	UnitPrice   int64       `json:"unit_price" db:"unit_price"`
	Total       null.Int64  `json:"total" db:"total"` // explicit amount of imported lines
	Position    int         `json:"position" db:"position"`
}

// Amount is the explicit total when set, quantity times unit price otherwise.
func (l InvoiceLine) Amount() int64 {
	if l.Total.Valid {
		return l.Total.Int64
	}
	return l.Quantity * l.UnitPrice
}

// Total sums the amounts of lines.
func Total(lines []InvoiceLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Amount()
	}
	return total
}

type LineInput struct {
	FeeTypeID   string `json:"fee_type_id" validate:"omitempty,uuid"`
	Description string `json:"description" validate:"required,notblank,max=500"`
	Quantity    int64  `json:"quantity" validate:"gte=1,lte=100000"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0,lte=1000000000000"`
	Total       *int64 `json:"total" validate:"omitempty,gte=0,lte=1000000000000"`
}

type InvoiceInput struct {
	StudentID string        `json:"student_id" validate:"required,uuid"`
	IssueDate string        `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate   string        `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Status    InvoiceStatus `json:"status" validate:"omitempty,oneof=brouillon envoyee"`
	Notes     string        `json:"notes" validate:"max=2000"`
	Lines     []LineInput   `json:"lines" validate:"required,min=1,dive"`
}

func (ii *InvoiceInput) Clean() {
	ii.StudentID = core.CleanString(ii.StudentID)
	ii.IssueDate = core.CleanString(ii.IssueDate)
	ii.DueDate = core.CleanString(ii.DueDate)
	ii.Notes = core.CleanString(ii.Notes)
	for i := range ii.Lines {
		ii.Lines[i].FeeTypeID = core.CleanString(ii.Lines[i].FeeTypeID)
		ii.Lines[i].Description = core.CleanString(ii.Lines[i].Description)
	}
}

type InvoiceStatusChange struct {
	Status InvoiceStatus `json:"status" validate:"required,oneof=brouillon envoyee impayee"`
}

type InvoiceFilter struct {
	StudentID string        `query:"student_id"`
	Status    InvoiceStatus `query:"status"`
	Search    string        `query:"search"`
	From      string        `query:"from"`
	To        string        `query:"to"`

	from, to time.Time
}

func (f InvoiceFilter) FromDate() time.Time { return f.from }
func (f InvoiceFilter) ToDate() time.Time   { return f.to }

// Parse checks the period bounds of the filter.
func (f *InvoiceFilter) Parse() error {
	f.Search = core.CleanString(f.Search)
	var err error
	if f.From != "" {
		if f.from, err = time.Parse(dateLayout, f.From); err != nil {
			return core.NewFieldError("from", "invalid date")
		}
	}
	if f.To != "" {
		if f.to, err = time.Parse(dateLayout, f.To); err != nil {
			return core.NewFieldError("to", "invalid date")
		}
	}
	return nil
}

type PaymentMethod string

const (
	MethodCash        PaymentMethod = "especes"
	MethodWave        PaymentMethod = "wave"
	MethodOrangeMoney PaymentMethod = "orange_money"
	MethodTransfer    PaymentMethod = "virement"
	MethodCheque      PaymentMethod = "cheque"
)

var methodLabels = map[PaymentMethod]string{
	MethodCash:        "Espèces",
	MethodWave:        "Wave",
	MethodOrangeMoney: "Orange Money",
	MethodTransfer:    "Virement",
	MethodCheque:      "Chèque",
}

func (m PaymentMethod) Label() string {
	if l, ok := methodLabels[m]; ok {
		return l
	}
	return string(m)
}

type Payment struct {
	ID         string        `json:"id" db:"id"`
	TenantID   string        `json:"-" db:"tenant_id"`
	InvoiceID  string        `json:"invoice_id" db:"invoice_id"`
	Number     string        `json:"number" db:"number"`
	Amount     int64         `json:"amount" db:"amount"`
	PaidAt     time.Time     `json:"paid_at" db:"paid_at"`
	Method     PaymentMethod `json:"method" db:"method"`
	Reference  string        `json:"reference" db:"reference"`
	Notes      string        `json:"notes" db:"notes"`
	RecordedBy string        `json:"recorded_by" db:"recorded_by"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

type PaymentInput struct {
	InvoiceID string        `json:"invoice_id" validate:"required,uuid"`
	Amount    int64         `json:"amount" validate:"gt=0"`
	PaidAt    string        `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
	Method    PaymentMethod `json:"method" validate:"required,oneof=especes wave orange_money virement cheque"`
	Reference string        `json:"reference" validate:"max=200"`
	Notes     string        `json:"notes" validate:"max=1000"`
}

func (pi *PaymentInput) Clean() {
	pi.InvoiceID = core.CleanString(pi.InvoiceID)
	pi.PaidAt = core.CleanString(pi.PaidAt)
	pi.Reference = core.CleanString(pi.Reference)
	pi.Notes = core.CleanString(pi.Notes)
}

type PaymentFilter struct {
	InvoiceID string        `query:"invoice_id"`
	Method    PaymentMethod `query:"method"`
	Limit     int           `query:"limit"`
}
