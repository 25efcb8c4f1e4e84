package sui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EventID is the ledger position of one event: transaction digest plus sequence inside it.
type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

func (id EventID) String() string {
	return id.TxDigest + ":" + id.EventSeq
}

// Seq returns EventSeq as a number, or 0 when it does not parse.
func (id EventID) Seq() uint64 {
	n, _ := strconv.ParseUint(id.EventSeq, 10, 64)
	return n
}

type EventFilter struct {
	MoveEventType string `json:"MoveEventType,omitempty"`
}

type Event struct {
	ID                EventID         `json:"id"`
	PackageID         string          `json:"packageId"`
	TransactionModule string          `json:"transactionModule"`
	Sender            string          `json:"sender"`
	Type              string          `json:"type"`
	ParsedJSON        json.RawMessage `json:"parsedJson"`
	TimestampMs       Uint64String    `json:"timestampMs"`
}

type EventPage struct {
	Data        []Event  `json:"data"`
	NextCursor  *EventID `json:"nextCursor"`
	HasNextPage bool     `json:"hasNextPage"`
}

type ObjectContent struct {
	DataType string         `json:"dataType"`
	Type     string         `json:"type"`
	Fields   map[string]any `json:"fields"`
}

type ObjectData struct {
	ObjectID string         `json:"objectId"`
	Version  string         `json:"version"`
	Digest   string         `json:"digest"`
	Type     string         `json:"type"`
	Content  *ObjectContent `json:"content"`
}

type objectResponse struct {
	Data  *ObjectData     `json:"data"`
	Error json.RawMessage `json:"error"`
}

type MoveCallRequest struct {
	PackageID     string
	Module        string
	Function      string
	TypeArguments []string
	Arguments     []any
	GasBudget     uint64
}

// Target returns the fully qualified function name.
func (r MoveCallRequest) Target() string {
	return r.PackageID + "::" + r.Module + "::" + r.Function
}

type moveCallResult struct {
	TxBytes string `json:"txBytes"`
}

type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type TransactionEffects struct {
	Status ExecutionStatus `json:"status"`
}

type ObjectChange struct {
	Type       string `json:"type"`
	ObjectID   string `json:"objectId"`
	ObjectType string `json:"objectType"`
	Sender     string `json:"sender"`
	Digest     string `json:"digest"`
}

type TransactionResponse struct {
	Digest        string              `json:"digest"`
	Effects       *TransactionEffects `json:"effects"`
	Events        []Event             `json:"events"`
	ObjectChanges []ObjectChange      `json:"objectChanges"`
}

// Succeeded reports whether the effects carry a "success" status.
func (r *TransactionResponse) Succeeded() bool {
	return r != nil && r.Effects != nil && r.Effects.Status.Status == "success"
}

// Uint64String decodes u64 values that the node encodes either as JSON strings or numbers.
type Uint64String uint64

func (u *Uint64String) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == "" {
		*u = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*u = 0
		return nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %q: %w", raw, err)
	}
	*u = Uint64String(n)
	return nil
}

func (u Uint64String) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(u), 10) + `"`), nil
}
