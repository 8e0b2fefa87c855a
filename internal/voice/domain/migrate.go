package domain

// CurrentSchemaVersion is the version written by this build.
const CurrentSchemaVersion = 2

// Migrate upgrades a room record loaded from storage to the current schema.
// It returns true when anything changed so the caller can persist the upgrade.
//
// The upgrade path is explicit and versioned rather than scattered nil checks:
// v0 records predate per-segment pricing and carry only room-level amounts;
// v1 records predate visibility and recording modes.
func (m *RoomMeta) Migrate() bool {
	if m.SchemaVersion >= CurrentSchemaVersion {
		return false
	}

	if m.SchemaVersion < 1 {
		if m.ReplayMode == "" {
			m.ReplayMode = ReplayLoadGated
		}
		if m.SegmentLocks == nil {
			m.SegmentLocks = make(map[string]SegmentLock)
		}
		// Seed the segment list from legacy room-level pricing. The room
		// always has at least one segment.
		if len(m.Segments) == 0 {
			m.Segments = []Segment{{
				ID:        m.ID + "-seg-1",
				StartedAt: m.CreatedAt,
				PayTo:     m.PayTo,
				Pricing: SegmentPricing{
					LiveAmount:   m.LiveAmount,
					ReplayAmount: m.ReplayAmount,
				},
			}}
		}
		if m.CurrentSegmentID == "" {
			m.CurrentSegmentID = m.Segments[len(m.Segments)-1].ID
		}
	}

	if m.SchemaVersion < 2 {
		if m.Visibility == "" {
			m.Visibility = "public"
		}
		if m.RecordingMode == "" {
			m.RecordingMode = "none"
		}
	}

	m.SchemaVersion = CurrentSchemaVersion
	return true
}
