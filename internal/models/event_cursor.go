package models

import "time"

// EventCursor is the persisted position of one tracked event stream.
// A row without TxDigest/EventSeq carries only bookkeeping (last error) and reads as "start from genesis".
type EventCursor struct {
	Stream        string     `gorm:"primaryKey;type:text;comment:事件流名称"`
	TxDigest      *string    `gorm:"type:text;comment:游标交易摘要"`
	EventSeq      *string    `gorm:"type:text;comment:游标事件序号"`
	LastSuccessAt *time.Time `gorm:"type:timestamptz;comment:最近成功时间"`
	LastAttemptAt *time.Time `gorm:"type:timestamptz;comment:最近尝试时间"`
	LastError     *string    `gorm:"type:text;comment:最近错误信息"`
	EventsTotal   int64      `gorm:"not null;default:0;comment:累计处理事件数"`
	UpdatedAt     time.Time  `gorm:"type:timestamptz;not null;comment:更新时间"`
}

func (EventCursor) TableName() string {
	return "event_cursors"
}

// HasPosition reports whether the row stores a usable ledger position.
func (c *EventCursor) HasPosition() bool {
	return c != nil && c.TxDigest != nil && c.EventSeq != nil && *c.TxDigest != ""
}
