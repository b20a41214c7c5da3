// README: Settings parsing, persistence round-trip and summary tests.
package farmout

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relialimo/internal/modules/directory"
	"relialimo/internal/modules/reservation"
)

func TestNormalizeInterval(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{1, 1},
		{60, 60},
		{15, 15},
		{0, DefaultIntervalMinutes},
		{61, DefaultIntervalMinutes},
		{-3, DefaultIntervalMinutes},
		{float64(10), 10},
		{10.5, DefaultIntervalMinutes},
		{"12", 12},
		{" 7 ", 7},
		{"abc", DefaultIntervalMinutes},
		{"", DefaultIntervalMinutes},
		{json.Number("30"), 30},
		{json.Number("2.0"), 2},
		{json.Number("99"), DefaultIntervalMinutes},
		{nil, DefaultIntervalMinutes},
		{true, DefaultIntervalMinutes},
	}
	for _, tc := range cases {
		if got := NormalizeInterval(tc.in); got != tc.want {
			t.Errorf("NormalizeInterval(%#v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestApplyIntervalEdit_InvalidKeepsPrevious(t *testing.T) {
	cases := []struct {
		prev int
		raw  string
		want int
	}{
		{5, "10", 10},
		{12, "0", 12},
		{12, "61", 12},
		{12, "ten", 12},
		{12, "", 12},
		{0, "junk", DefaultIntervalMinutes},
	}
	for _, tc := range cases {
		if got := ApplyIntervalEdit(tc.prev, tc.raw); got != tc.want {
			t.Errorf("ApplyIntervalEdit(%d, %q) = %d, want %d", tc.prev, tc.raw, got, tc.want)
		}
	}
}

func TestParseRecipients_RawEntries(t *testing.T) {
	got := ParseRecipients(context.Background(), "a@x.com, b|555-1111", nil)
	want := []Recipient{
		{Identifier: "a@x.com", Email: "a@x.com"},
		{Identifier: "b", Phone: "555-1111"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("recipients = %+v, want %+v", got, want)
	}
}

func TestParseRecipients_SplitsAndSkipsBlanks(t *testing.T) {
	got := ParseRecipients(context.Background(), "one@x.com\n\n , 555-2222\r\ntwo@x.com|555-3333,", nil)
	want := []Recipient{
		{Identifier: "one@x.com", Email: "one@x.com"},
		{Identifier: "555-2222", Phone: "555-2222"},
		{Identifier: "two@x.com", Email: "two@x.com", Phone: "555-3333"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("recipients = %+v, want %+v", got, want)
	}
	if got := ParseRecipients(context.Background(), "  ", nil); got == nil || len(got) != 0 {
		t.Fatalf("blank input should give an empty list, got %#v", got)
	}
}

func TestParseRecipients_ResolvesAgainstDirectory(t *testing.T) {
	dir := stubDirectory{
		"u1": {ID: "u1", Email: "dispatch@limo.test", Phone: "555-0001"},
		"u2": {ID: "u2", Email: "night@limo.test"},
	}
	got := ParseRecipients(context.Background(), "DISPATCH@limo.test\nu2|555-9999\nstranger", dir)

	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Email != "dispatch@limo.test" || got[0].Phone != "555-0001" || got[0].UserID == nil || *got[0].UserID != "u1" {
		t.Errorf("resolved by email: %+v", got[0])
	}
	if got[1].Email != "night@limo.test" || got[1].Phone != "555-9999" || got[1].UserID == nil || *got[1].UserID != "u2" {
		t.Errorf("resolved by id with phone override: %+v", got[1])
	}
	if got[2].UserID != nil || got[2].Email != "" || got[2].Phone != "stranger" {
		t.Errorf("unresolved: %+v", got[2])
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := &memSettingsStore{}
	dir := stubDirectory{"u1": {ID: "u1", Email: "dispatch@limo.test", Phone: "555-0001"}}
	ctx := context.Background()

	first := NewService(Deps{Settings: store, Directory: dir, Scheduler: newManualScheduler(), Log: zerolog.Nop()})
	t.Cleanup(first.Close)
	raw := "u1\nb|555-1111"
	saved, err := first.UpdateSettings(ctx, SettingsUpdate{DispatchIntervalMinutes: 12, Recipients: &raw})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	second := NewService(Deps{Settings: store, Scheduler: newManualScheduler(), Log: zerolog.Nop()})
	t.Cleanup(second.Close)
	loaded := second.LoadSettings(ctx)
	if !reflect.DeepEqual(loaded, saved) {
		t.Fatalf("loaded %+v, want %+v", loaded, saved)
	}
	if loaded.DispatchIntervalMinutes != 12 || len(loaded.Recipients) != 2 {
		t.Fatalf("unexpected settings: %+v", loaded)
	}
}

func TestLoadSettings_DefaultsOnMissingOrMalformed(t *testing.T) {
	ctx := context.Background()
	cases := map[string]*memSettingsStore{
		"empty":     {},
		"malformed": {data: []byte("{not json")},
		"error":     {err: errors.New("redis down")},
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			svc := NewService(Deps{Settings: store, Scheduler: newManualScheduler(), Log: zerolog.Nop()})
			t.Cleanup(svc.Close)
			got := svc.LoadSettings(ctx)
			if !reflect.DeepEqual(got, DefaultSettings()) {
				t.Fatalf("settings = %+v, want defaults", got)
			}
		})
	}

	store := &memSettingsStore{data: []byte(`{"dispatchIntervalMinutes":"90","recipientsRaw":"x@y.z","recipients":[{"identifier":"x@y.z","email":"x@y.z"},{"identifier":" "}]}`)}
	svc := NewService(Deps{Settings: store, Scheduler: newManualScheduler(), Log: zerolog.Nop()})
	t.Cleanup(svc.Close)
	got := svc.LoadSettings(ctx)
	if got.DispatchIntervalMinutes != DefaultIntervalMinutes {
		t.Errorf("interval = %d, want default", got.DispatchIntervalMinutes)
	}
	if len(got.Recipients) != 1 || got.Recipients[0].Email != "x@y.z" {
		t.Errorf("recipients = %+v", got.Recipients)
	}
}

func TestUpdateSettings_PartialUpdate(t *testing.T) {
	store := &memSettingsStore{}
	svc := NewService(Deps{Settings: store, Scheduler: newManualScheduler(), Log: zerolog.Nop()})
	t.Cleanup(svc.Close)
	ctx := context.Background()

	raw := "ops@limo.test"
	if _, err := svc.UpdateSettings(ctx, SettingsUpdate{DispatchIntervalMinutes: 20, Recipients: &raw}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := svc.UpdateSettings(ctx, SettingsUpdate{DispatchIntervalMinutes: "nope"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DispatchIntervalMinutes != DefaultIntervalMinutes {
		t.Errorf("invalid partial update: interval = %d, want default", got.DispatchIntervalMinutes)
	}
	if got.RecipientsRaw != raw || len(got.Recipients) != 1 {
		t.Errorf("recipients changed by interval-only update: %+v", got)
	}

	got, err = svc.EditInterval(ctx, "500")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got.DispatchIntervalMinutes != DefaultIntervalMinutes {
		t.Errorf("invalid edit should keep previous value, got %d", got.DispatchIntervalMinutes)
	}
	got, _ = svc.EditInterval(ctx, "45")
	if got.DispatchIntervalMinutes != 45 {
		t.Errorf("edit = %d, want 45", got.DispatchIntervalMinutes)
	}
}

func TestUpdateSettings_SaveErrorKeepsInMemoryValue(t *testing.T) {
	store := &memSettingsStore{err: errors.New("redis down")}
	svc := NewService(Deps{Settings: store, Scheduler: newManualScheduler(), Log: zerolog.Nop()})
	t.Cleanup(svc.Close)

	_, err := svc.UpdateSettings(context.Background(), SettingsUpdate{DispatchIntervalMinutes: 9})
	if err == nil || !strings.Contains(err.Error(), "save farm-out settings") {
		t.Fatalf("expected wrapped save error, got %v", err)
	}
	if got := svc.Settings().DispatchIntervalMinutes; got != 9 {
		t.Fatalf("interval = %d, want 9", got)
	}
}

func TestBuildSummary(t *testing.T) {
	pickup := time.Date(2026, 10, 20, 14, 30, 0, 0, time.UTC)
	full := reservation.Reservation{
		ID:                 "abc",
		ConfirmationNumber: "1042",
		PassengerName:      "Ada Lovelace",
		PickupAt:           &pickup,
		PickupLocation:     "JFK Terminal 4",
	}
	if got, want := BuildSummary(full), "Reservation #1042: Ada Lovelace | Tue Oct 20, 2026 2:30 PM | JFK Terminal 4"; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
	if got, want := BuildSummary(reservation.Reservation{ID: "abc"}), "Reservation abc"; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
	if got, want := BuildSummary(reservation.Reservation{ID: "abc", PickupLocation: "LGA"}), "Reservation abc: LGA"; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}

func TestRecipientLabel(t *testing.T) {
	if got := (Recipient{Identifier: "x", Email: "e@x", Phone: "1"}).Label(); got != "e@x" {
		t.Errorf("label = %q", got)
	}
	if got := (Recipient{Identifier: "x", Phone: "1"}).Label(); got != "1" {
		t.Errorf("label = %q", got)
	}
	if got := (Recipient{Identifier: "x"}).Label(); got != "x" {
		t.Errorf("label = %q", got)
	}
}

func TestTimerScheduler_CancelAndClose(t *testing.T) {
	s := NewTimerScheduler()
	fired := make(chan struct{}, 2)

	h := s.Schedule(20*time.Millisecond, func() { fired <- struct{}{} })
	s.Cancel(h)
	s.Cancel(h)
	s.Cancel(0)

	s.Schedule(time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled callback did not fire")
	}
	select {
	case <-fired:
		t.Fatal("cancelled callback fired")
	case <-time.After(60 * time.Millisecond):
	}

	s.Schedule(time.Hour, func() {})
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", s.Pending())
	}
	s.Close()
	if s.Pending() != 0 {
		t.Fatalf("pending after close = %d", s.Pending())
	}
	if h := s.Schedule(time.Millisecond, func() { fired <- struct{}{} }); h != 0 {
		t.Fatalf("schedule after close returned %d", h)
	}
}

var _ DirectoryLookup = stubDirectory(nil)
var _ DirectoryLookup = (*directory.Service)(nil)
