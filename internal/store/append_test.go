package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreledger/internal/ids"
	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/testutil"
)

func TestAppend_GenesisEvent(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(ids.NewFixedGenerator("evt-0")))
	ctx := context.Background()

	res, err := s.Append(ctx, testRequest("camp-1", 0))
	require.NoError(t, err)

	env := res.Envelope
	assert.False(t, res.Reused)
	assert.Equal(t, "evt-0", env.EventID)
	assert.Equal(t, int64(0), env.ReplayOrdinal)
	assert.Equal(t, ir.GenesisHash, env.PrevEventHash)
	assert.Equal(t, ir.EventSchemaVersion, env.EventSchemaVersion)
	assert.Equal(t, testutil.Epoch, env.WallTimeUTC)
	assert.Equal(t, int64(0), env.WorldTime)

	want, err := ir.PayloadHash(ir.IRObject{"n": ir.IRInt(0)})
	require.NoError(t, err)
	assert.Equal(t, want, env.PayloadHash)
}

func TestAppend_ChainsToPredecessor(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		_, err := s.Append(ctx, testRequest("camp-1", i))
		require.NoError(t, err)
	}

	events, err := s.ReadEvents(ctx, "camp-1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	for i, env := range events {
		assert.Equal(t, int64(i), env.ReplayOrdinal)
		if i == 0 {
			assert.Equal(t, ir.GenesisHash, env.PrevEventHash)
			continue
		}
		assert.Equal(t, events[i-1].ChainHash(), env.PrevEventHash)
	}

	head, ok, err := s.Head(ctx, "camp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, events[2], head)
}

func TestAppend_RoundTripsAllFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	req := testRequest("camp-1", 0)
	req.ActorID = "gm"
	req.ApprovedBy = "player-2"
	req.ExecutionRequestID = "exec-9"
	req.Payload = ir.IRObject{
		"name":  ir.IRString("café"),
		"stats": ir.IRObject{"hp": ir.IRInt(12)},
		"gone":  ir.IRNull{},
	}

	res, err := s.Append(ctx, req)
	require.NoError(t, err)

	stored, ok, err := s.ReadEventByKey(ctx, "camp-1", res.Envelope.IdempotencyKey)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, res.Envelope, stored)
	assert.Equal(t, "gm", stored.ActorID)
	assert.Equal(t, "plan-1", stored.PlanID)
	assert.Equal(t, "exec-9", stored.ExecutionRequestID)
	assert.Equal(t, "player-2", stored.ApprovedBy)
	assert.Equal(t, ir.IRObject{
		"name":  ir.IRString("café"),
		"stats": ir.IRObject{"hp": ir.IRInt(12)},
	}, stored.Payload)
}

func TestAppend_EmptyCorrelationFieldsStoredAsNull(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	req := testRequest("camp-1", 0)
	req.PlanID = ""
	_, err := s.Append(ctx, req)
	require.NoError(t, err)

	var nulls int
	err = s.DB().QueryRow(`
		SELECT (actor_id IS NULL) + (plan_id IS NULL) + (execution_request_id IS NULL) + (approved_by IS NULL)
		FROM events WHERE campaign_id = 'camp-1'
	`).Scan(&nulls)
	require.NoError(t, err)
	assert.Equal(t, 4, nulls)
}

func TestAppend_IdempotentReuse(t *testing.T) {
	rec := newCountingRecorder()
	s := createTestStore(t, WithRecorder(rec))
	ctx := context.Background()

	first, err := s.Append(ctx, testRequest("camp-1", 0))
	require.NoError(t, err)

	retry := testRequest("camp-1", 0)
	retry.ExecutionRequestID = "exec-retry"
	second, err := s.Append(ctx, retry)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.Envelope.EventID, second.Envelope.EventID)
	assert.Equal(t, first.Envelope.ReplayOrdinal, second.Envelope.ReplayOrdinal)

	events, err := s.ReadEvents(ctx, "camp-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	assert.Equal(t, 1, rec.get(AppendResultCreated))
	assert.Equal(t, 1, rec.get(AppendResultReused))
}

func TestAppend_IdempotencyConflict(t *testing.T) {
	rec := newCountingRecorder()
	s := createTestStore(t, WithRecorder(rec))
	ctx := context.Background()

	_, err := s.Append(ctx, testRequest("camp-1", 0))
	require.NoError(t, err)

	conflicting := testRequest("camp-1", 0)
	conflicting.Payload = ir.IRObject{"n": ir.IRInt(99)}
	_, err = s.Append(ctx, conflicting)
	require.Error(t, err)

	var conflict *IdempotencyConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(0), conflict.ExistingOrdinal)
	assert.NotEqual(t, conflict.ExistingHash, conflict.AttemptedHash)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.True(t, IsCallerError(err))
	assert.False(t, IsFatal(err))

	events, err := s.ReadEvents(ctx, "camp-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 1, rec.get(AppendResultConflict))
}

func TestAppend_RejectsNonIntegerPayload(t *testing.T) {
	s := createTestStore(t)

	payload, err := ir.FromAny(map[string]any{"hp": 1.5})
	require.ErrorIs(t, err, ir.ErrNonIntegerNumeric)
	require.Nil(t, payload)

	req := testRequest("camp-1", 0)
	req.Payload = ir.IRObject{"list": ir.IRArray{ir.IRNull{}}}
	_, err = s.Append(context.Background(), req)
	require.ErrorIs(t, err, ir.ErrNullValue)
}

func TestAppend_CampaignsAreIndependent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, err := s.Append(ctx, testRequest("camp-a", 0))
	require.NoError(t, err)
	b, err := s.Append(ctx, testRequest("camp-b", 0))
	require.NoError(t, err)

	assert.Equal(t, int64(0), a.Envelope.ReplayOrdinal)
	assert.Equal(t, int64(0), b.Envelope.ReplayOrdinal)
	assert.Equal(t, ir.GenesisHash, b.Envelope.PrevEventHash)
	assert.NotEqual(t, a.Envelope.IdempotencyKey, b.Envelope.IdempotencyKey)

	campaigns, err := s.ListCampaigns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"camp-a", "camp-b"}, campaigns)
}

func TestAppend_ValidatesRequest(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Append(context.Background(), AppendRequest{EventType: "x"})
	require.Error(t, err)

	req := testRequest("camp-1", 0)
	req.EventType = ""
	_, err = s.Append(context.Background(), req)
	require.Error(t, err)
}

func TestTx_RejectsOtherCampaign(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginCampaign(ctx, "camp-1")
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Append(ctx, testRequest("camp-2", 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camp-2")
}

func TestTx_RollbackDiscardsAndReleasesLock(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginCampaign(ctx, "camp-1")
	require.NoError(t, err)
	_, err = tx.Append(ctx, testRequest("camp-1", 0))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback(), "second rollback is a no-op")

	events, err := s.ReadEvents(ctx, "camp-1")
	require.NoError(t, err)
	assert.Empty(t, events)

	tx2, err := s.BeginCampaign(ctx, "camp-1")
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
}

func TestTx_LockHonorsContext(t *testing.T) {
	s := createTestStore(t)

	tx, err := s.BeginCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	defer tx.Rollback()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.BeginCampaign(ctx, "camp-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTx_AppendsInOneTransactionChain(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginCampaign(ctx, "camp-1")
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		res, err := tx.Append(ctx, testRequest("camp-1", i))
		require.NoError(t, err)
		assert.Equal(t, i, res.Envelope.ReplayOrdinal)
	}
	head, ok, err := tx.Head(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), head.ReplayOrdinal)
	require.NoError(t, tx.Commit())

	v, err := s.VerifyCampaign(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 5, v.Events)
}

func TestInsert_GapRejectedNextAccepted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	chain := buildChain(t, "camp-1", 3)

	tx, err := s.BeginCampaign(ctx, "camp-1")
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Insert(ctx, chain[0]))

	// k = 0: ordinal k+2 is a gap.
	err = tx.Insert(ctx, chain[2])
	require.ErrorIs(t, err, ErrOrdinalGap)
	var integrity *IntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, CodeOrdinalGap, integrity.Code)
	assert.Equal(t, int64(2), integrity.Ordinal)
	assert.True(t, IsFatal(err))

	require.NoError(t, tx.Insert(ctx, chain[1]))
	require.NoError(t, tx.Insert(ctx, chain[2]))
	require.NoError(t, tx.Commit())

	v, err := s.VerifyCampaign(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, v.Events)
	assert.Equal(t, chain[2].ChainHash(), v.Head)
}

func TestInsert_FirstOrdinalMustBeZero(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginCampaign(ctx, "camp-1")
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.Insert(ctx, buildEnvelope(t, "camp-1", 1, ir.GenesisHash))
	require.ErrorIs(t, err, ErrOrdinalGap)
}

func TestInsert_DuplicateOrdinal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	chain := buildChain(t, "camp-1", 1)

	tx, err := s.BeginCampaign(ctx, "camp-1")
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, tx.Insert(ctx, chain[0]))

	dup := buildEnvelope(t, "camp-1", 0, ir.GenesisHash)
	dup.EventID = "other-id"
	dup.IdempotencyKey = ir.IdempotencyKey{0xff}
	err = tx.Insert(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicateOrdinal)
	assert.True(t, IsFatal(err))
}

func TestInsert_NullOrdinalRejectedByDatabase(t *testing.T) {
	s := createTestStore(t)
	env := buildEnvelope(t, "camp-1", 0, ir.GenesisHash)

	_, err := s.DB().Exec(`
		INSERT INTO events (`+envelopeColumns+`)
		VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, NULL, '{}')
	`, env.EventID, env.CampaignID, env.EventType, env.EventSchemaVersion, env.WorldTime,
		env.WallTimeUTC.UnixMilli(), env.PrevEventHash[:], env.PayloadHash[:], env.IdempotencyKey[:])
	require.Error(t, err)

	mapped := integrityErrorFor(err, "camp-1", 0)
	require.ErrorIs(t, mapped, ErrNullOrdinal)
	assert.True(t, IsFatal(mapped))
}

func TestEvents_AppendOnly(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Append(ctx, testRequest("camp-1", 0))
	require.NoError(t, err)

	_, err = s.DB().Exec(`UPDATE events SET world_time = 99`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APPEND_ONLY")

	_, err = s.DB().Exec(`DELETE FROM events`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APPEND_ONLY")
}

func TestAppend_ConcurrentCampaigns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const campaigns = 4
	const perCampaign = 20

	var wg sync.WaitGroup
	errs := make(chan error, campaigns*perCampaign)
	for c := 0; c < campaigns; c++ {
		for i := 0; i < perCampaign; i++ {
			wg.Add(1)
			go func(campaign string, n int64) {
				defer wg.Done()
				if _, err := s.Append(ctx, testRequest(campaign, n)); err != nil {
					errs <- err
				}
			}(fmt.Sprintf("camp-%d", c), int64(i))
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for c := 0; c < campaigns; c++ {
		campaign := fmt.Sprintf("camp-%d", c)
		v, err := s.VerifyCampaign(ctx, campaign)
		require.NoError(t, err, campaign)
		assert.Equal(t, perCampaign, v.Events, campaign)
	}
}

func TestAppend_ConcurrentSameKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const writers = 10
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		reused int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Append(ctx, testRequest("camp-1", 7))
			assert.NoError(t, err)
			if res.Reused {
				mu.Lock()
				reused++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	events, err := s.ReadEvents(ctx, "camp-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, writers-1, reused)
}
