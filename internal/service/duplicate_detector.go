package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

const (
	defaultDuplicateWindow = 30 * 24 * time.Hour
	defaultDuplicateLimit  = 5
	duplicateTimeLayout    = "January 02, 2006 at 03:04 PM"
	noDuplicateMessage     = "No duplicate requests found"
)

type duplicateStore interface {
	RecentActive(ctx context.Context, studentID, documentType string, since time.Time, limit int) ([]models.DuplicateCandidate, error)
}

// DuplicateDetector finds a recent Pending or Approved request asking for the same
// documents and purposes, ignoring order.
type DuplicateDetector struct {
	store  duplicateStore
	window time.Duration
	limit  int
	now    func() time.Time
}

// NewDuplicateDetector builds a detector looking back window over at most limit requests.
func NewDuplicateDetector(store duplicateStore, window time.Duration, limit int) *DuplicateDetector {
	if window <= 0 {
		window = defaultDuplicateWindow
	}
	if limit <= 0 {
		limit = defaultDuplicateLimit
	}
	return &DuplicateDetector{store: store, window: window, limit: limit, now: time.Now}
}

// Check returns the blocking request, if any, with the message shown to the student.
func (d *DuplicateDetector) Check(ctx context.Context, studentID, documentType string, documents, purposes []string) (*models.DuplicateMatch, string, error) {
	since := d.now().UTC().Add(-d.window)
	candidates, err := d.store.RecentActive(ctx, studentID, documentType, since, d.limit)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicate requests")
	}

	wantDocs := normalizedSet(documents)
	wantPurposes := normalizedSet(purposes)
	for _, c := range candidates {
		if !equalStrings(normalizedSet(c.Documents), wantDocs) || !equalStrings(normalizedSet(c.Purposes), wantPurposes) {
			continue
		}
		match := &models.DuplicateMatch{RequestID: c.ID, Status: c.Status, CreatedAt: c.CreatedAt}
		return match, duplicateMessage(*match), nil
	}
	return nil, noDuplicateMessage, nil
}

func duplicateMessage(m models.DuplicateMatch) string {
	return fmt.Sprintf("You already have a %s request for the same documents and purposes (Request #%s, submitted %s).",
		strings.ToLower(string(m.Status)), m.RequestID, m.CreatedAt.Format(duplicateTimeLayout))
}

func normalizedSet(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
