package frotixsync

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects how the header phase walks the remote catalog.
type Mode string

const (
	// ModeFull walks every page from the beginning.
	ModeFull Mode = "full"
	// ModeIncremental only takes orders above the highest locally known id.
	ModeIncremental Mode = "incremental"
	// ModeResume continues from the last attempted identifier.
	ModeResume Mode = "resume"
	// ModeDetailsOnly skips the header phase entirely.
	ModeDetailsOnly Mode = "details-only"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFull:
		return ModeFull, nil
	case ModeIncremental:
		return ModeIncremental, nil
	case ModeResume:
		return ModeResume, nil
	case ModeDetailsOnly:
		return ModeDetailsOnly, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

const (
	defaultPageSize        = 100
	defaultDetailBatchSize = 200
)

// Options is the per-run configuration shared by both phases.
type Options struct {
	Mode            Mode
	NoDetails       bool
	MaxRecords      int
	OpenedAfter     *time.Time
	OpenedBefore    *time.Time
	PageSize        int
	DetailBatchSize int
	TriggeredBy     string
}

func (o Options) pageSize() int {
	if o.PageSize > 0 {
		return o.PageSize
	}
	return defaultPageSize
}

func (o Options) detailBatchSize() int {
	if o.DetailBatchSize > 0 {
		return o.DetailBatchSize
	}
	return defaultDetailBatchSize
}

// SyncResult is the structured outcome of one engine run, independent of how
// callers choose to print it.
type SyncResult struct {
	Entity          string        `json:"entity"`
	Mode            Mode          `json:"mode"`
	PagesFetched    int           `json:"pages_fetched"`
	HeadersInserted int           `json:"headers_inserted"`
	HeadersSkipped  int           `json:"headers_skipped"`
	DetailsSynced   int           `json:"details_synced"`
	DetailsFailed   int           `json:"details_failed"`
	ItemsWritten    int           `json:"items_written"`
	VehiclesUpdated int           `json:"vehicles_updated"`
	Success         bool          `json:"success"`
	Duration        time.Duration `json:"duration"`
	Err             error         `json:"-"`
}

// OrderPayload is the wire shape of one service order as the Frotix API
// returns it. Numeric fields arrive as json.Number because the API is not
// consistent about quoting them.
type OrderPayload struct {
	ID             json.Number        `json:"id"`
	CompanyCode    json.Number        `json:"company_code"`
	UnitCode       json.Number        `json:"unit_code"`
	OpenDate       string             `json:"open_date"`
	VehiclePlate   string             `json:"vehicle_plate"`
	SupplierCode   string             `json:"supplier_code"`
	DocumentNumber string             `json:"document_number"`
	TotalValue     json.Number        `json:"total_value"`
	Items          []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	ItemNumber json.Number `json:"item_number"`
	UnitPrice  json.Number `json:"unit_price"`
	Quantity   json.Number `json:"quantity"`
}

type listResponse struct {
	Results []OrderPayload `json:"results"`
}

func intFromNumber(num json.Number) int {
	if num.String() == "" {
		return 0
	}
	n, err := num.Int64()
	if err != nil {
		return 0
	}
	return int(n)
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}

func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t
	}
	return nil
}

// TriggerSyncRequest is the HTTP/PubSub trigger body.
type TriggerSyncRequest struct {
	Mode       string `json:"mode" validate:"omitempty,oneof=full incremental resume details-only"`
	NoDetails  bool   `json:"noDetails"`
	MaxRecords int    `json:"maxRecords" validate:"omitempty,min=0"`
}

type StatusResponse struct {
	Phase              string  `json:"phase"`
	Status             string  `json:"status"`
	HighestProcessedID int     `json:"highestProcessedId"`
	LastProcessedID    int     `json:"lastProcessedId"`
	HeadersInserted    int     `json:"headersInserted"`
	HeadersSkipped     int     `json:"headersSkipped"`
	DetailsSynced      int     `json:"detailsSynced"`
	DetailsFailed      int     `json:"detailsFailed"`
	LastError          *string `json:"lastError"`
	StartedAt          *string `json:"startedAt"`
	FinishedAt         *string `json:"finishedAt"`
}

type SyncRunResponse struct {
	ID          uint    `json:"id"`
	Operation   string  `json:"operation"`
	RecordCount int     `json:"recordCount"`
	Status      string  `json:"status"`
	Error       *string `json:"error"`
	StartedAt   *string `json:"startedAt"`
	FinishedAt  *string `json:"finishedAt"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncTriggerPayload struct {
	Mode          string `json:"mode"`
	NoDetails     bool   `json:"no_details"`
	MaxRecords    int    `json:"max_records"`
	TriggeredBy   string `json:"triggered_by"`
	CorrelationId string `json:"correlation_id"`
}
