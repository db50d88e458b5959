package metrics

import "testing"

func TestAverageResponseTimeZeroWhenNoneSent(t *testing.T) {
	c := NewCollector()
	snap, _ := c.ChannelSnapshot("telegram")
	if snap.AverageResponseTimeMs() != 0 {
		t.Fatal("average should be 0 with no sent messages")
	}
}

func TestRecordSentAccumulatesAverage(t *testing.T) {
	c := NewCollector()
	c.RecordSent("telegram", 100)
	c.RecordSent("telegram", 300)
	snap, ok := c.ChannelSnapshot("telegram")
	if !ok {
		t.Fatal("expected channel snapshot to exist")
	}
	if snap.MessagesSent != 2 {
		t.Fatalf("messages sent = %d, want 2", snap.MessagesSent)
	}
	if avg := snap.AverageResponseTimeMs(); avg != 200 {
		t.Fatalf("average = %v, want 200", avg)
	}
}

func TestSummaryTotals(t *testing.T) {
	c := NewCollector()
	c.RecordReceived("telegram")
	c.RecordReceived("discord")
	c.RecordError("discord", "boom")
	summary := c.GetSummary()
	if summary.Totals.TotalMessagesReceived != 2 {
		t.Fatalf("total received = %d, want 2", summary.Totals.TotalMessagesReceived)
	}
	if summary.Totals.TotalErrors != 1 {
		t.Fatalf("total errors = %d, want 1", summary.Totals.TotalErrors)
	}
}
