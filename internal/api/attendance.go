package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// IdempotencyHeader carries the per-scan key so the server can drop
// duplicate deliveries of a retried scan.
const IdempotencyHeader = "Idempotency-Key"

type attendanceRequest struct {
	SubjectID string `json:"subject_id"`
	ClassID   int64  `json:"class_id"`
	ActorID   int64  `json:"actor_id"`
	ScannedAt string `json:"scanned_at"`
}

// SubmitAttendance posts one scan. Any non-2xx answer is an error and the
// scan must be retried.
func (c *Client) SubmitAttendance(ctx context.Context, scan *lms.AttendanceScan) error {
	r := request{
		method: http.MethodPost,
		path:   "/attendance/scan",
		body: attendanceRequest{
			SubjectID: scan.SubjectID,
			ClassID:   scan.ClassID,
			ActorID:   scan.ActorID,
			ScannedAt: scan.ScannedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if scan.IdempotencyKey != "" {
		r.headers = map[string]string{IdempotencyHeader: scan.IdempotencyKey}
	}

	if _, err := c.do(ctx, r); err != nil {
		return fmt.Errorf("submitting attendance for %s: %w", scan.SubjectID, err)
	}
	return nil
}
