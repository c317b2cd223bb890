package registry

import (
	"encoding/json"
	"time"
)

// sessionRow is the GORM row shape backing the sql Store. Config and
// Checkpoint are stored as JSON columns rather than one column per field —
// config.SessionConfig grows fields over time (schedule, qualifiers) and a
// migration per field would outpace what this registry needs to guarantee,
// which is just "give me the bytes back for the session id I stored them
// under."
type sessionRow struct {
	SessionID  string `gorm:"primaryKey;column:session_id"`
	ConfigJSON []byte `gorm:"column:config_json;not null"`
	OutgoingSeq int64  `gorm:"column:outgoing_seq;not null"`
	ExpectedIncomingSeq int64 `gorm:"column:expected_incoming_seq;not null"`
	LastResetDate       string `gorm:"column:last_reset_date"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (sessionRow) TableName() string { return "sessions" }

func toRow(rec SessionRecord) (sessionRow, error) {
	data, err := json.Marshal(rec.Config)
	if err != nil {
		return sessionRow{}, err
	}
	return sessionRow{
		SessionID:           rec.SessionID,
		ConfigJSON:          data,
		OutgoingSeq:         rec.Checkpoint.OutgoingSeq,
		ExpectedIncomingSeq: rec.Checkpoint.ExpectedIncomingSeq,
		LastResetDate:       rec.Checkpoint.LastResetDate,
		UpdatedAt:           rec.UpdatedAt,
	}, nil
}

func fromRow(row sessionRow) (SessionRecord, error) {
	rec := SessionRecord{
		SessionID: row.SessionID,
		Checkpoint: Checkpoint{
			OutgoingSeq:         row.OutgoingSeq,
			ExpectedIncomingSeq: row.ExpectedIncomingSeq,
			LastResetDate:       row.LastResetDate,
		},
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.ConfigJSON, &rec.Config); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}
