package ledger

import (
	"fmt"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/ir"
)

// MaxConfidence is the highest valid confidence score.
const MaxConfidence = 100

// Record is one attestation about a video.
type Record struct {
	RecordID        uint32
	VideoHash       VideoHash
	Submitter       auth.Address
	IsAIGenerated   bool
	ConfidenceScore uint32
	Timestamp       uint64
}

// Object renders the record with snake_case fields.
func (r Record) Object() ir.Object {
	return ir.Object{
		"record_id":        ir.Int(r.RecordID),
		"video_hash":       ir.String(r.VideoHash.String()),
		"submitter":        ir.String(r.Submitter.String()),
		"is_ai_generated":  ir.Bool(r.IsAIGenerated),
		"confidence_score": ir.Int(r.ConfidenceScore),
		"timestamp":        ir.Int(int64(r.Timestamp)),
	}
}

// MarshalJSON uses the canonical encoding that is also stored.
func (r Record) MarshalJSON() ([]byte, error) {
	return ir.MarshalCanonical(r.Object())
}

// UnmarshalJSON accepts the stored encoding.
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := decodeRecord(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func encodeRecord(r Record) ([]byte, error) {
	data, err := ir.MarshalCanonical(r.Object())
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var obj ir.Object
	if err := obj.UnmarshalJSON(data); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	var (
		r   Record
		err error
	)
	id, err := obj.GetInt("record_id")
	if err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	hash, err := obj.GetString("video_hash")
	if err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	submitter, err := obj.GetString("submitter")
	if err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	isAI, err := obj.GetBool("is_ai_generated")
	if err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	score, err := obj.GetInt("confidence_score")
	if err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	ts, err := obj.GetInt("timestamp")
	if err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}

	r.RecordID = uint32(id)
	// A stored hash that fails to parse is corruption, not a rejection.
	if r.VideoHash, err = ParseVideoHash(hash); err != nil {
		return Record{}, fmt.Errorf("decode record: %v", err)
	}
	if r.Submitter, err = auth.ParseAddress(submitter); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	r.IsAIGenerated = isAI
	r.ConfidenceScore = uint32(score)
	r.Timestamp = uint64(ts)
	return r, nil
}
