// README: Store tests against live Postgres and Redis; skipped when either is unreachable.
package farmout_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"relialimo/internal/config"
	"relialimo/internal/infra"
	"relialimo/internal/modules/farmout"
	"relialimo/internal/modules/reservation"
	"relialimo/internal/types"
)

type liveEnv struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func connectLive(t *testing.T) (context.Context, liveEnv) {
	t.Helper()
	if testing.Short() {
		t.Skip("live store tests skipped in -short mode")
	}
	cfg, _ := config.Load()
	dsn := firstNonEmpty(os.Getenv("RELIALIMO_TEST_DSN"), cfg.DB.DSN)
	addr := firstNonEmpty(os.Getenv("RELIALIMO_TEST_REDIS_ADDR"), cfg.Redis.Addr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	db, err := infra.NewDB(ctx, dsn)
	if err != nil {
		t.Skipf("postgres unavailable at %s: %v", redactedDSN(dsn), err)
	}
	t.Cleanup(db.Close)
	if err := db.Ping(ctx); err != nil {
		t.Skipf("postgres unavailable at %s: %v", redactedDSN(dsn), err)
	}
	if err := infra.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	rc, err := infra.NewRedis(ctx, addr)
	if err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return ctx, liveEnv{db: db, redis: rc}
}

func uniqueID(prefix string) types.ID {
	return types.ID(fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano()))
}

func TestLive_SettingsAndOfferLedger(t *testing.T) {
	ctx, env := connectLive(t)
	key := "farmout:test_settings:" + string(uniqueID("k"))
	rid := uniqueID("res")
	store := farmout.NewRedisStore(env.redis, key)
	t.Cleanup(func() {
		_ = env.redis.Del(context.Background(), key).Err()
		_ = store.Clear(context.Background(), rid)
	})

	svc := farmout.NewService(farmout.Deps{Settings: store, Ledger: store, Log: zerolog.Nop()})
	t.Cleanup(svc.Close)
	raw := "ops@limo.test"
	if _, err := svc.UpdateSettings(ctx, farmout.SettingsUpdate{DispatchIntervalMinutes: 7, Recipients: &raw}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	reloaded := farmout.NewService(farmout.Deps{Settings: store, Log: zerolog.Nop()})
	t.Cleanup(reloaded.Close)
	if got := reloaded.LoadSettings(ctx); got.DispatchIntervalMinutes != 7 || len(got.Recipients) != 1 {
		t.Fatalf("reloaded settings = %+v", got)
	}

	for _, d := range []types.ID{"3", "1", "3"} {
		if err := store.RecordOffer(ctx, rid, d, time.Now()); err != nil {
			t.Fatalf("record offer: %v", err)
		}
	}
	got, err := store.Attempted(ctx, rid)
	if err != nil || len(got) != 2 {
		t.Fatalf("attempted = %v, %v; want two distinct drivers", got, err)
	}
	if ttl := env.redis.TTL(ctx, "farmout:reservation:"+string(rid)+":offered").Val(); ttl <= 0 {
		t.Errorf("offer ledger has no expiry: %v", ttl)
	}
	if err := store.Clear(ctx, rid); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := store.Attempted(ctx, rid); len(got) != 0 {
		t.Fatalf("attempted after clear = %v", got)
	}
}

func TestLive_MarkOfferedRespectsAcceptedDriver(t *testing.T) {
	ctx, env := connectLive(t)
	repo := reservation.NewStore(env.db)
	rid := uniqueID("res")
	now := time.Now().UTC()
	if err := repo.Create(ctx, &reservation.Reservation{
		ID:            rid,
		PassengerName: "Live Test",
		FarmoutMode:   reservation.ModeAutomatic,
		FarmoutStatus: reservation.StatusUnassigned,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { _, _ = env.db.Exec(context.Background(), "DELETE FROM reservations WHERE id = $1", string(rid)) })

	if ok, err := repo.MarkOffered(ctx, rid); err != nil || !ok {
		t.Fatalf("mark offered on open reservation = %v, %v", ok, err)
	}
	if ok, err := repo.AssignFarmoutDriver(ctx, rid, "7", "Sam"); err != nil || !ok {
		t.Fatalf("assign = %v, %v", ok, err)
	}
	if ok, _ := repo.AssignFarmoutDriver(ctx, rid, "8", "Kim"); ok {
		t.Fatal("second assign must not win")
	}
	if ok, err := repo.MarkOffered(ctx, rid); err != nil || ok {
		t.Fatalf("mark offered after accept = %v, %v; want false", ok, err)
	}
	r, err := repo.Get(ctx, rid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.FarmoutStatus != reservation.StatusAssigned || r.FarmoutDriverID == nil || *r.FarmoutDriverID != "7" {
		t.Fatalf("reservation after accept = %+v", r)
	}
}

func TestLive_ActivityAndEscalationOutbox(t *testing.T) {
	ctx, env := connectLive(t)
	rid := uniqueID("res")
	t.Cleanup(func() {
		bg := context.Background()
		_, _ = env.db.Exec(bg, "DELETE FROM farmout_activity WHERE reservation_id = $1", string(rid))
		_, _ = env.db.Exec(bg, "DELETE FROM farmout_escalations WHERE reservation_id = $1", string(rid))
	})

	activity := farmout.NewActivityStore(env.db, zerolog.Nop())
	activity.Log(ctx, rid, "Automatic farm-out started.")
	activity.Log(ctx, rid, "Offer sent to driver Sam (555-0107).")
	entries, err := activity.List(ctx, rid, 10)
	if err != nil || len(entries) != 2 || !strings.HasPrefix(entries[1].Message, "Offer sent") {
		t.Fatalf("activity = %+v, %v", entries, err)
	}

	outbox := farmout.NewEscalationOutbox(env.db, zerolog.Nop(), time.Second)
	ev := farmout.EscalationEvent{
		ID:          string(uniqueID("esc")),
		Reservation: reservation.Reservation{ID: rid},
		Recipients:  []farmout.Recipient{{Identifier: "ops@limo.test", Email: "ops@limo.test"}},
		Summary:     "Reservation " + string(rid),
		At:          time.Now().UTC(),
	}
	outbox.Consume(ev)
	outbox.Consume(ev)

	pending, err := outbox.Pending(ctx, 500)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	found := 0
	for _, p := range pending {
		if p.ID == ev.ID {
			found++
			if len(p.Recipients) != 1 || p.Recipients[0].Email != "ops@limo.test" {
				t.Errorf("recipients = %+v", p.Recipients)
			}
		}
	}
	if found != 1 {
		t.Fatalf("escalation %s found %d times in outbox", ev.ID, found)
	}
	if ok, err := outbox.MarkDelivered(ctx, ev.ID); err != nil || !ok {
		t.Fatalf("mark delivered = %v, %v", ok, err)
	}
	if ok, _ := outbox.MarkDelivered(ctx, ev.ID); ok {
		t.Fatal("second delivery mark must be a no-op")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func redactedDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at == -1 || scheme == -1 || at <= scheme+3 {
		return dsn
	}
	return dsn[:scheme+3] + "***:***" + dsn[at:]
}
