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
	if id == 0 {
		t.Error("Generated snowflake should not be zero")
	}
}

func TestSnowflakeRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	extracted := Extract(id)
	if extracted.Timestamp != ExtractTimestamp(id) {
		t.Errorf("Extract and ExtractTimestamp disagree: %d vs %d", extracted.Timestamp, ExtractTimestamp(id))
	}
	if extracted.WorkerID != 0 {
		t.Errorf("Expected worker ID 0, got %d", extracted.WorkerID)
	}
}

func TestSnowflakeIncrementOverflow(t *testing.T) {
	for i := 0; i < 100000; i++ {
		_, err := Generate()
		if err != nil {
			return
		}
	}
	t.Error("Expected increment overflow, but there wasn't")
}
