package jobs

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEncodeDecode_States(t *testing.T) {
	reset := time.Unix(1_700_000_000, 0).UTC()
	tests := []struct {
		name  string
		state State
	}{
		{"normal", Normal{}},
		{"rate_limited", RateLimited{ResetAt: reset}},
		{"cap_suspended", CapSuspended{ResetAt: reset}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &Job{
				ID:           "job-1",
				State:        tt.state,
				Token:        "tok",
				RefreshToken: "ref",
				TweetIDs:     []string{"1", "2"},
				TweetCount:   5,
				CreatedAt:    time.Unix(100, 0).UTC(),
			}
			data, err := Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := Decode("job-1", data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.State != tt.state {
				t.Errorf("state = %#v, want %#v", out.State, tt.state)
			}
			if out.Token != "tok" || out.RefreshToken != "ref" {
				t.Errorf("tokens = %q/%q", out.Token, out.RefreshToken)
			}
			if len(out.TweetIDs) != 2 || out.TweetCount != 5 {
				t.Errorf("ids = %v count = %d", out.TweetIDs, out.TweetCount)
			}
			if !out.CreatedAt.Equal(in.CreatedAt) {
				t.Errorf("createdAt = %v, want %v", out.CreatedAt, in.CreatedAt)
			}
		})
	}
}

func TestEncode_FlatWireShape(t *testing.T) {
	j := &Job{
		ID:        "job-1",
		State:     RateLimited{ResetAt: time.Unix(500, 0)},
		CreatedAt: time.Unix(100, 0),
		UserID:    "42",
	}
	data, err := Encode(j)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["status"] != "rate_limited" {
		t.Errorf("status = %v", raw["status"])
	}
	if raw["rateLimitReset"] != float64(500) {
		t.Errorf("rateLimitReset = %v", raw["rateLimitReset"])
	}
	if _, ok := raw["monthlyCapReset"]; ok {
		t.Error("monthlyCapReset present on a rate limited job")
	}
	if raw["createdAt"] != float64(100) {
		t.Errorf("createdAt = %v", raw["createdAt"])
	}
	if raw["userId"] != "42" {
		t.Errorf("userId = %v", raw["userId"])
	}
	ids, ok := raw["tweetIds"].([]any)
	if !ok || len(ids) != 0 {
		t.Errorf("tweetIds = %v, want empty array", raw["tweetIds"])
	}
}

func TestDecode_MissingFields(t *testing.T) {
	j, err := Decode("key-1", []byte(`{"token":"t","tweetIds":["a"]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if j.ID != "key-1" {
		t.Errorf("ID = %q, want key-1", j.ID)
	}
	if _, ok := j.State.(Normal); !ok {
		t.Errorf("state = %#v, want Normal", j.State)
	}
	if j.CreatedAt.Unix() != 0 {
		t.Errorf("createdAt = %v, want epoch 0", j.CreatedAt)
	}
}

func TestDecode_RateLimitedWithoutReset(t *testing.T) {
	j, err := Decode("k", []byte(`{"jobId":"k","status":"rate_limited"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rl, ok := j.State.(RateLimited)
	if !ok {
		t.Fatalf("state = %#v, want RateLimited", j.State)
	}
	if !rl.ResetAt.IsZero() {
		t.Errorf("ResetAt = %v, want zero", rl.ResetAt)
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode("k", []byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := Decode("k", []byte(`{"status":"paused"}`)); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestLease_Held(t *testing.T) {
	now := time.Unix(1000, 0)
	l := &Lease{Owner: "a", ExpiresAt: now.Add(time.Minute)}

	if !l.Held("b", now) {
		t.Error("live lease of another owner should be held")
	}
	if l.Held("a", now) {
		t.Error("own lease should not block")
	}
	if l.Held("b", now.Add(2*time.Minute)) {
		t.Error("expired lease should not block")
	}
	var none *Lease
	if none.Held("b", now) {
		t.Error("nil lease should not block")
	}
}

func TestJob_Helpers(t *testing.T) {
	j := &Job{ID: "j", UserID: "u", State: CapSuspended{}}
	if j.Active() {
		t.Error("suspended job reported active")
	}
	if !j.NeedsRefill() {
		t.Error("job with userId and no IDs should need refill")
	}

	j.TweetIDs = []string{"1"}
	c := j.Clone()
	c.TweetIDs[0] = "2"
	if j.TweetIDs[0] != "1" {
		t.Error("Clone shares the ID slice")
	}

	if !IsSessionKey("session_abc") || IsSessionKey("job-session_") {
		t.Error("IsSessionKey mismatch")
	}
}
