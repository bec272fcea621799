package store

import (
	"context"
	"fmt"

	"github.com/roach88/loreledger/internal/ir"
)

// ChainVerification summarizes a verified campaign chain.
type ChainVerification struct {
	CampaignID  string
	Events      int     // events verified before the first failure
	ChainLength int     // events read for the campaign
	Head        ir.Hash // chain hash of the last event; genesis when empty
}

// VerifyChain checks a campaign's events in order:
//   - ordinals are exactly 0..n-1
//   - every payload_hash recomputes from the stored payload
//   - every prev_event_hash equals the predecessor's chain hash (genesis
//     for ordinal 0)
//
// The first failure is returned as *HashChainMismatchError or, for ordinal
// problems, *IntegrityError.
func VerifyChain(events []ir.Envelope) (ChainVerification, error) {
	v := ChainVerification{ChainLength: len(events)}
	prev := ir.GenesisHash

	for i, env := range events {
		if i == 0 {
			v.CampaignID = env.CampaignID
		} else if env.CampaignID != v.CampaignID {
			return v, fmt.Errorf("verify chain: ordinal %d belongs to campaign %q, expected %q",
				env.ReplayOrdinal, env.CampaignID, v.CampaignID)
		}

		if env.ReplayOrdinal != int64(i) {
			code := CodeOrdinalGap
			if env.ReplayOrdinal < int64(i) {
				code = CodeDuplicateOrdinal
			}
			return v, &IntegrityError{Code: code, CampaignID: env.CampaignID, Ordinal: env.ReplayOrdinal}
		}

		recomputed, err := ir.PayloadHash(env.Payload)
		if err != nil {
			return v, fmt.Errorf("verify chain: ordinal %d: %w", env.ReplayOrdinal, err)
		}
		if recomputed != env.PayloadHash {
			return v, &HashChainMismatchError{
				CampaignID: env.CampaignID,
				Ordinal:    env.ReplayOrdinal,
				Field:      "payload_hash",
				Expected:   recomputed,
				Actual:     env.PayloadHash,
			}
		}

		if env.PrevEventHash != prev {
			return v, &HashChainMismatchError{
				CampaignID: env.CampaignID,
				Ordinal:    env.ReplayOrdinal,
				Field:      "prev_event_hash",
				Expected:   prev,
				Actual:     env.PrevEventHash,
			}
		}

		prev = env.ChainHash()
		v.Events++
	}

	v.Head = prev
	return v, nil
}

// VerifyCampaign reads a campaign and runs VerifyChain over it. It takes no
// campaign lock.
func (s *Store) VerifyCampaign(ctx context.Context, campaignID string) (ChainVerification, error) {
	events, err := s.ReadEvents(ctx, campaignID)
	if err != nil {
		return ChainVerification{CampaignID: campaignID}, fmt.Errorf("verify campaign %s: %w", campaignID, err)
	}
	v, err := VerifyChain(events)
	v.CampaignID = campaignID
	if err != nil {
		return v, err
	}
	s.logger.Debug("campaign verified", "campaign", campaignID, "events", v.Events, "head", v.Head.String())
	return v, nil
}
