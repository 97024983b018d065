package feed

import (
	"testing"
)

func TestParseMessage(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"minimal", `{"_id":"x","title":"T"}`, true},
		{"full", `{"_id":"x","title":"T","time":1700000000000,"symbols":["BTC_USDT"],"firstPrice":{"BTCUSDT":"37000.5"}}`, true},
		{"not json", `hello`, false},
		{"array", `[{"_id":"x","title":"T"}]`, false},
		{"null", `null`, false},
		{"missing id", `{"title":"T"}`, false},
		{"missing title", `{"_id":"x"}`, false},
		{"empty title", `{"_id":"x","title":""}`, false},
		{"numeric id", `{"_id":5,"title":"T"}`, false},
		{"bad optional field", `{"_id":"x","title":"T","symbols":"BTC"}`, true},
		{"uppercase keys", `{"_ID":"x","TITLE":"T"}`, false},
		{"shadowing key", `{"_id":"x","title":"T","Title":""}`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, ok := ParseMessage([]byte(tc.raw))
			if ok != tc.ok {
				t.Fatalf("ParseMessage(%s) ok=%v, want %v", tc.raw, ok, tc.ok)
			}
			if ok && string(msg.Raw) != tc.raw {
				t.Fatalf("raw frame not preserved: %s", msg.Raw)
			}
		})
	}
}

func TestParseMessageLenientKeepsGoodFields(t *testing.T) {
	msg, ok := ParseMessage([]byte(`{"_id":"x","title":"T","source":"Blogs","symbols":"oops","time":1000}`))
	if !ok {
		t.Fatal("frame with valid id and title should be accepted")
	}
	if msg.Source != "Blogs" || msg.Time != 1000 || len(msg.Symbols) != 0 {
		t.Fatalf("unexpected lenient decode %+v", msg)
	}
}

func TestParseMessageMatchesKeysExactly(t *testing.T) {
	msg, ok := ParseMessage([]byte(`{"_id":"x","title":"T","source":"Binance","Source":"Other","Title":"shadow"}`))
	if !ok {
		t.Fatal("frame with exact _id and title should be accepted")
	}
	if msg.Title != "T" || msg.Source != "Binance" {
		t.Fatalf("differently cased keys must not override exact ones, got title=%q source=%q", msg.Title, msg.Source)
	}
}

func TestParseMessageDecodesFirstPrice(t *testing.T) {
	msg, ok := ParseMessage([]byte(`{"_id":"x","title":"T","firstPrice":{"HBARUSDT":0.09364},"suggestions":[{"coin":"HBAR","supply":50000000000}]}`))
	if !ok {
		t.Fatal("frame should be accepted")
	}
	if got := msg.FirstPrice["HBARUSDT"].String(); got != "0.09364" {
		t.Fatalf("unexpected first price %s", got)
	}
	if len(msg.Suggestions) != 1 || msg.Suggestions[0].Supply == nil || msg.Suggestions[0].Supply.String() != "50000000000" {
		t.Fatalf("unexpected suggestions %+v", msg.Suggestions)
	}
}
