package snowflake

import "testing"

func TestSetupSnowflake(t *testing.T) {
	err := Setup(0)
	if err != nil {
		t.Error(err)
	}
}

func TestGenerateSnowflake(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Error(err)
	}
	if id <= 0 {
		t.Errorf("expected a positive snowflake, got %d", id)
	}
}

func TestGenerateMonotonic(t *testing.T) {
	var last int64
	for range 1000 {
		id, err := Generate()
		if err != nil {
			// increment overflow within a single millisecond is fine here
			return
		}
		if id <= last {
			t.Fatalf("snowflake went backwards: %d after %d", id, last)
		}
		last = id
	}
}

func TestExtractRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	parts := Extract(id)
	if parts.Timestamp != ExtractTimestamp(id) {
		t.Errorf("Extract and ExtractTimestamp disagree: %d vs %d", parts.Timestamp, ExtractTimestamp(id))
	}
	if parts.WorkerID != 0 {
		t.Errorf("expected worker ID 0, got %d", parts.WorkerID)
	}
}
